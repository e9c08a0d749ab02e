package serial

import (
	"fmt"
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// Winsize mirrors struct winsize from <sys/ioctl.h>.
type Winsize struct {
	Row, Col, Xpixel, Ypixel uint16
}

// ptyNumber returns the pts(4) index of the master end opened from
// /dev/ptmx, as reported by TIOCGPTN.
func (p *Port) ptyNumber() (uint32, error) {
	var n uint32
	if err := ioctl.Ioctl(uintptr(p.f), tiocgptn, uintptr(unsafe.Pointer(&n))); err != nil {
		return 0, wrapErr("TIOCGPTN", err)
	}
	return n, nil
}

// SetLockPT sets or clears the pty pair's lock flag via TIOCSPTLCK. The
// slave end cannot be opened while the pair is locked.
func (p *Port) SetLockPT(lock bool) error {
	var v int32
	if lock {
		v = 1
	}
	return wrapErr("TIOCSPTLCK", ioctl.Ioctl(uintptr(p.f), tiocsptlck, uintptr(unsafe.Pointer(&v))))
}

// GetPTPeer opens the slave end of the pty pair master was allocated from.
func (p *Port) GetPTPeer(mode int) (*Port, error) {
	n, err := p.ptyNumber()
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/dev/pts/%d", n)
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NOCTTY|mode, 0)
	if err != nil {
		return nil, wrapErr("open "+path, err)
	}
	return &Port{options: NewOptions(), f: fd}, nil
}

func (p *Port) SetWinSize(w *Winsize) error {
	return wrapErr("TIOCSWINSZ", ioctl.Ioctl(uintptr(p.f), tiocswinsz, uintptr(unsafe.Pointer(w))))
}

func (p *Port) GetWinSize() (*Winsize, error) {
	w := &Winsize{}
	if err := ioctl.Ioctl(uintptr(p.f), tiocgwinsz, uintptr(unsafe.Pointer(w))); err != nil {
		return nil, wrapErr("TIOCGWINSZ", err)
	}
	return w, nil
}

// OpenPTY allocates a pseudoterminal pair and returns the master and slave
// ends. If termp is non-nil the slave is configured with the given
// termios; if winp is non-nil the slave's window size is set too. Used by
// an851/device/firmware tests as an in-process stand-in for a real AN851
// device: a responder goroutine drives the slave end while the package
// under test talks to the master end exactly as it would a serial port.
func OpenPTY(termp *Termios, winp *Winsize) (*Port, *Port, error) {
	master, err := Open("/dev/ptmx", nil)
	if err != nil {
		return nil, nil, err
	}
	if err := master.SetLockPT(false); err != nil {
		master.Close()
		return nil, nil, err
	}
	slave, err := master.GetPTPeer(0)
	if err != nil {
		master.Close()
		return nil, nil, err
	}
	if termp != nil {
		if err := slave.SetAttr(TCSANOW, termp); err != nil {
			master.Close()
			slave.Close()
			return nil, nil, err
		}
	}
	if winp != nil {
		if err := slave.SetWinSize(winp); err != nil {
			master.Close()
			slave.Close()
			return nil, nil, err
		}
	}

	return master, slave, nil
}
