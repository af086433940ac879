package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultIdleTimeout    = 10 * time.Second
	maxLineLength         = 4096
)

// Message represents one line captured from a sensor bridge
type Message struct {
	Source    string
	Line      string
	Timestamp time.Time
}

// Option configures a Capture
type Option func(*Capture)

// WithReconnectDelay sets the wait between connection attempts
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Capture) {
		c.reconnectDelay = d
	}
}

// WithIdleTimeout sets how long a connection may stay silent before it is
// dropped and re-established
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Capture) {
		c.idleTimeout = d
	}
}

// Capture reads newline framed messages from one or more TCP sensor bridges,
// reconnecting whenever a bridge goes away
type Capture struct {
	sources        []string
	reconnectDelay time.Duration
	idleTimeout    time.Duration
	conns          map[string]net.Conn
	msgChan        chan Message
	wg             sync.WaitGroup
	stopChan       chan struct{}
	stopOnce       sync.Once
	mu             sync.Mutex
}

// New creates a new Capture instance
func New(sources []string, opts ...Option) *Capture {
	c := &Capture{
		sources:        sources,
		reconnectDelay: defaultReconnectDelay,
		idleTimeout:    defaultIdleTimeout,
		conns:          make(map[string]net.Conn),
		msgChan:        make(chan Message, 1000), // Buffer size of 1000 messages
		stopChan:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins reading from all sources
func (c *Capture) Start() error {
	for _, source := range c.sources {
		c.wg.Add(1)
		go c.connectToSource(source)
	}
	return nil
}

// Stop closes every connection and waits for the readers to exit. The
// Messages channel is closed afterwards. It is safe to call more than once.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.mu.Lock()
		for _, conn := range c.conns {
			conn.Close()
		}
		c.mu.Unlock()
		c.wg.Wait()
		close(c.msgChan)
	})
}

// Messages returns the channel for receiving messages
func (c *Capture) Messages() <-chan Message {
	return c.msgChan
}

func (c *Capture) stopped() bool {
	select {
	case <-c.stopChan:
		return true
	default:
		return false
	}
}

// wait sleeps for d, returning false if the capture was stopped meanwhile
func (c *Capture) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.stopChan:
		return false
	case <-timer.C:
		return true
	}
}

func (c *Capture) connectToSource(source string) {
	defer c.wg.Done()

	fmt.Printf("Attempting to connect to %s...\n", source)
	var disconnectTime time.Time

	for !c.stopped() {
		conn, err := net.DialTimeout("tcp", source, c.reconnectDelay)
		if err != nil {
			if disconnectTime.IsZero() {
				disconnectTime = time.Now()
			}
			if !c.wait(c.reconnectDelay) {
				return
			}
			continue
		}

		configureTCP(conn, source)
		if disconnectTime.IsZero() {
			fmt.Printf("Successfully connected to %s\n", source)
		} else {
			fmt.Printf("Connection to %s reestablished after %.1f seconds\n", source, time.Since(disconnectTime).Seconds())
			disconnectTime = time.Time{}
		}

		c.mu.Lock()
		if c.stopped() {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conns[source] = conn
		c.mu.Unlock()

		if err := c.readLines(source, conn); err != nil && !c.stopped() {
			fmt.Printf("Connection to %s lost: %v\n", source, err)
		}

		c.mu.Lock()
		delete(c.conns, source)
		c.mu.Unlock()

		disconnectTime = time.Now()
	}
}

// configureTCP enables keepalive and disables Nagle on TCP connections
func configureTCP(conn net.Conn, source string) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tcpConn.SetKeepAlive(true); err != nil {
		fmt.Printf("Warning: failed to set keepalive for %s: %v\n", source, err)
	}
	if err := tcpConn.SetKeepAlivePeriod(2 * time.Second); err != nil {
		fmt.Printf("Warning: failed to set keepalive period for %s: %v\n", source, err)
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		fmt.Printf("Warning: failed to set no delay for %s: %v\n", source, err)
	}
}

// readLines forwards every non-empty line until the connection fails, stays
// idle for longer than the idle timeout or the capture is stopped
func (c *Capture) readLines(source string, conn net.Conn) error {
	defer conn.Close()

	scanner := bufio.NewScanner(&deadlineReader{conn: conn, timeout: c.idleTimeout})
	scanner.Buffer(make([]byte, 0, 256), maxLineLength)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		select {
		case c.msgChan <- Message{
			Source:    source,
			Line:      line,
			Timestamp: time.Now(),
		}:
		case <-c.stopChan:
			return nil
		}
	}

	err := scanner.Err()
	if err == nil {
		return io.EOF
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("no data for %s", c.idleTimeout)
	}
	return err
}

// deadlineReader extends the read deadline before every read
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, err
		}
	}
	return r.conn.Read(p)
}
