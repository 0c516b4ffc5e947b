// Package systools implements the local-socket RPC client to the companion
// hook process: the external "system-tools" collaborator spec.md places out
// of the core's scope, consumed here only through its wire protocol.
package systools

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

// WakeupLockMode selects the SET_WAKEUP_LOCK argument.
type WakeupLockMode int32

const (
	WakeupLockIgnore  WakeupLockMode = 0
	WakeupLockDefault WakeupLockMode = 1
)

const (
	opGetForeground = "GET_FOREGROUND"
	opSetWakeupLock = "SET_WAKEUP_LOCK"
	opBreakNetwork  = "BREAK_NETWORK"

	statusSuccess int32 = 0
	statusFailure int32 = 1
)

// Client talks to the companion hook over a Unix domain socket using the
// length-prefixed int32 framing spec.md §6 describes. Each call dials fresh;
// the hook is expected to accept short-lived connections.
type Client struct {
	log  *zap.Logger
	path string
	dial func() (net.Conn, error)
}

func New(log *zap.Logger, socketPath string) *Client {
	c := &Client{log: log.Named("systools"), path: socketPath}
	c.dial = func() (net.Conn, error) {
		return net.DialTimeout("unix", c.path, 2*time.Second)
	}
	return c
}

// GetForeground requests the hook's view of the foreground uid set.
func (c *Client) GetForeground() ([]int, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := writeFrame(conn, []byte(opGetForeground)); err != nil {
		return nil, fmt.Errorf("write op: %w", err)
	}

	r := bufio.NewReader(conn)
	n, err := readInt32(r)
	if err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	if n < 0 || n > 1<<16 {
		return nil, fmt.Errorf("implausible uid count %d", n)
	}

	uids := make([]int, n)
	for i := int32(0); i < n; i++ {
		v, err := readInt32(r)
		if err != nil {
			return nil, fmt.Errorf("read uid %d/%d: %w", i, n, err)
		}
		uids[i] = int(v)
	}
	return uids, nil
}

// SetWakeupLock sends SET_WAKEUP_LOCK for the given uids: the scheduler
// acquires with mode=Ignore on doze entry and releases with mode=Default on
// doze exit.
func (c *Client) SetWakeupLock(mode WakeupLockMode, uids []int) error {
	conn, err := c.dial()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	buf := make([]byte, 0, 8+4*len(uids))
	buf = appendInt32(buf, int32(len(uids)))
	buf = appendInt32(buf, int32(mode))
	for _, uid := range uids {
		buf = appendInt32(buf, int32(uid))
	}

	if err := writeFrame(conn, append([]byte(opSetWakeupLock), buf...)); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	r := bufio.NewReader(conn)
	status, err := readInt32(r)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if status != statusSuccess {
		return fmt.Errorf("hook reported status %d", status)
	}
	return nil
}

// BreakNetwork requests the hook revoke uid's network capability. It
// implements executor.NetworkBreaker.
func (c *Client) BreakNetwork(uid int) error {
	conn, err := c.dial()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	payload := appendInt32([]byte(opBreakNetwork), int32(uid))
	if err := writeFrame(conn, payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	r := bufio.NewReader(conn)
	status, err := readInt32(r)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if status != statusSuccess {
		return fmt.Errorf("hook reported failure for uid %d", uid)
	}
	return nil
}

func writeFrame(w net.Conn, payload []byte) error {
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(payload)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readInt32(r *bufio.Reader) (int32, error) {
	var buf [4]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func appendInt32(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}

// BatteryProbe is the battery-state half of the out-of-scope system-tools
// collaborator, used by the scheduler's once-per-second battery chore.
type BatteryProbe interface {
	LevelPercent() (int, error)
	IsCharging() (bool, error)
}
