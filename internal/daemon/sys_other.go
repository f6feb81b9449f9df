//go:build !unix

// Stubs for platforms without POSIX process control. Every environment
// change fails with errors.ErrUnsupported so Open reports a clear error.

package daemon

import (
	"errors"
	"os"
)

func (hostSystem) Chroot(string) error                 { return errors.ErrUnsupported }
func (hostSystem) Umask(int) error                     { return errors.ErrUnsupported }
func (hostSystem) Setgroups([]int) error               { return errors.ErrUnsupported }
func (hostSystem) Setgid(int) error                    { return errors.ErrUnsupported }
func (hostSystem) Setuid(int) error                    { return errors.ErrUnsupported }
func (hostSystem) DisableCoreDumps() error             { return errors.ErrUnsupported }
func (hostSystem) MaxFileDescriptors() (uint64, error) { return 0, errors.ErrUnsupported }
func (hostSystem) OpenDescriptors() ([]int, bool)      { return nil, false }
func (hostSystem) ReservedDescriptors() ([]int, error) { return nil, errors.ErrUnsupported }
func (hostSystem) Close(int) error                     { return errors.ErrUnsupported }
func (hostSystem) Dup2(int, int) error                 { return errors.ErrUnsupported }
func (hostSystem) OpenNull() (int, error)              { return -1, errors.ErrUnsupported }
func (hostSystem) IsSocket(int) bool                   { return false }
func (hostSystem) Spawn(spawnRequest) error            { return errors.ErrUnsupported }

func lookupSignal(string) (os.Signal, bool) { return nil, false }
