package fastview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 512

	pingResolution = time.Millisecond * 500
	// The number of pings to tolerate losing before concluding the peer is gone.
	pongWait = pingResolution * 4

	sockOpDeadline   = time.Second
	closeGracePeriod = 500 * time.Millisecond
)

var upgrader = websocket.Upgrader{}

// Client publishes ele-updates to one browser over a websocket and forwards the
// text messages it sends back (button presses) to a commands channel.
type Client struct {
	updates  <-chan []EleUpdate
	commands chan<- string
	ws       *websock
	rootCtx  context.Context
}

// NewClient upgrades the request to a websocket. Updates should already be
// coalesced (see Batch); every item received is published. Commands may be nil,
// in which case client messages are read and discarded.
func NewClient(
	updates <-chan []EleUpdate,
	commands chan<- string,
	w http.ResponseWriter,
	r *http.Request,
) (*Client, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)

	return &Client{
		updates:  updates,
		commands: commands,
		ws:       newWebsock(ws),
		rootCtx:  r.Context(),
	}, nil
}

// Sync runs the read, ping and publish loops until the client disconnects, the
// updates channel closes, or ctx ends, then closes the socket. A normal
// disconnect returns nil.
func (cli *Client) Sync(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(mergeContexts(ctx, cli.rootCtx))
	// Reads block in the websocket regardless of context, so teardown closes the socket.
	group.Go(func() error {
		<-groupCtx.Done()
		cli.ws.Close()
		return nil
	})
	group.Go(func() error {
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		return cli.publish(groupCtx)
	})

	if err := group.Wait(); err != nil && !isClosure(err) && !errors.Is(err, errPublishDone) {
		return err
	}
	return nil
}

// mergeContexts returns a context cancelled when either parent ends.
func mergeContexts(a, b context.Context) context.Context {
	ctx, cancel := context.WithCancel(a)
	go func() {
		defer cancel()
		select {
		case <-ctx.Done():
		case <-b.Done():
		}
	}()
	return ctx
}

var ErrPongDeadlineExceeded error = errors.New("client disconnect, pong deadline exceeded")

// errPublishDone stops the group when the update source closes.
var errPublishDone = errors.New("update source closed")

// pingPong runs the liveness check. The pong handler is only invoked while
// readMessages is reading.
func (cli *Client) pingPong(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *Client) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) error {
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
			return nil
		})
}

// readMessages forwards text messages to the commands channel. Errors returned
// by websocket reads are permanent, hence any error tears the client down.
func (cli *Client) readMessages(ctx context.Context) error {
	for {
		var msg []byte
		err := cli.ws.Read(
			ctx,
			func(ws *websocket.Conn) (readErr error) {
				_, msg, readErr = ws.ReadMessage()
				return
			})
		if err != nil {
			if ctx.Err() != nil {
				// Torn down by another loop.
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if cli.commands == nil || len(msg) == 0 {
			continue
		}

		select {
		case cli.commands <- string(msg):
		case <-ctx.Done():
			return nil
		}
	}
}

func (cli *Client) publish(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case updates, ok := <-cli.updates:
			if !ok {
				return errPublishDone
			}

			err := cli.ws.Write(
				ctx,
				func(ws *websocket.Conn) error {
					if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
						return fmt.Errorf("failed to set deadline: %w", err)
					}
					if err := ws.WriteJSON(updates); err != nil {
						return fmt.Errorf("publish failed: %w", err)
					}
					return nil
				})
			if err != nil {
				return err
			}
		}
	}
}

func isClosure(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure ||
			closeErr.Code == websocket.CloseGoingAway ||
			closeErr.Code == websocket.CloseNoStatusReceived
	}
	return false
}

// ErrSockCongestion indicates there are too many waiters on the socket for a given op.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

// websock serializes reads and writes to the websocket, which allows at most
// one concurrent reader and one concurrent writer.
type websock struct {
	// These are merely mutexes, but channel semantics allow timeouts.
	readSem  chan struct{}
	writeSem chan struct{}
	ws       *websocket.Conn
}

func newWebsock(ws *websocket.Conn) *websock {
	return &websock{
		readSem:  make(chan struct{}, 1),
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

// Conn returns the underlying websocket, for non-concurrent setup only.
func (sock *websock) Conn() *websocket.Conn {
	return sock.ws
}

// Close sends a close frame and closes the connection. Closing the connection
// also unblocks a pending read, so the read semaphore is not awaited.
func (sock *websock) Close() {
	sock.writeSem <- struct{}{}
	_ = sock.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = sock.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	time.Sleep(closeGracePeriod)
	sock.ws.Close()
}

// Read serializes read operations on the internal web socket. The read itself
// blocks until a message arrives, so the deadline only bounds acquiring the slot.
func (sock *websock) Read(
	ctx context.Context,
	readFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.readSem <- struct{}{}:
		defer func() { <-sock.readSem }()
		return readFn(sock.ws)
	case <-time.After(sockOpDeadline):
		return ErrSockCongestion
	}
}

// Write serializes write operations to the websocket.
func (sock *websock) Write(
	ctx context.Context,
	writeFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return writeFn(sock.ws)
	case <-time.After(sockOpDeadline):
		return ErrSockCongestion
	}
}
