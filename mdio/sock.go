package mdio

import (
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const sysMdioBus = "/sys/class/mdio_bus"

// systemTransport talks generic netlink to the kernel's mdio family
// and enumerates buses through sysfs.
func systemTransport() Transport {
	return Transport{
		Dial: dialNetlink,
		List: listSysfs,
	}
}

type netlinkConn struct {
	fd int
}

func dialNetlink() (Conn, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_GENERIC)
	if err != nil {
		return nil, errors.Wrap(err, "opening netlink socket")
	}

	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "binding netlink socket")
	}

	return &netlinkConn{fd: fd}, nil
}

func (c *netlinkConn) Send(b []byte) error {
	return unix.Sendto(c.fd, b, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
}

func (c *netlinkConn) Recv() ([]byte, error) {
	buf := make([]byte, 8192)

	n, _, err := unix.Recvfrom(c.fd, buf, 0)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *netlinkConn) Close() error {
	return unix.Close(c.fd)
}

func listSysfs(match string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(sysMdioBus, match))
	if err != nil {
		return nil, errors.Wrapf(err, "globbing %q", match)
	}

	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		ids = append(ids, filepath.Base(p))
	}
	return ids, nil
}
