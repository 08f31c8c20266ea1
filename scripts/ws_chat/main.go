package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/socialchat-server/internal/proto"
)

type frame struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

// session binds one handler per event name for the lifetime of the socket
// and routes replies to the request that asked for them.
type session struct {
	conn     *websocket.Conn
	handlers map[string]func(frame)

	mu      sync.Mutex
	nextID  int
	pending map[string]chan frame
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:3000/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("SOCIALCHAT_TOKEN"), "handshake token")
	to := flag.String("to", "", "user id to chat with")
	group := flag.String("group", "", "group id to chat in")
	flag.Parse()

	if *token == "" {
		return errors.New("a token is required (-token or SOCIALCHAT_TOKEN)")
	}
	if (*to == "") == (*group == "") {
		return errors.New("exactly one of -to or -group is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr+"?token="+*token, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	s := newSession(conn)
	go func() {
		defer cancel()
		s.readLoop(ctx)
	}()

	historyEvent, sendEvent, target := proto.EventGetChatHistory, proto.EventSendPrivateMessage, *to
	if *group != "" {
		historyEvent, sendEvent, target = proto.EventGetGroupChat, proto.EventSendGroupMessage, *group
	}

	// Loading history also joins the conversation room.
	if err := s.printHistory(ctx, historyEvent, target); err != nil {
		return err
	}
	fmt.Println("Type messages and press Enter to send. /history reloads. Ctrl+C to exit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			switch {
			case text == "":
				continue
			case text == "/history":
				if err := s.printHistory(ctx, historyEvent, target); err != nil {
					log.Printf("history: %v", err)
				}
				continue
			}

			var payload any = proto.PrivateMessageData{Text: text, TargetUserID: target}
			if *group != "" {
				payload = proto.GroupMessageData{Text: text, GroupID: target}
			}
			if _, err := s.emit(ctx, sendEvent, payload, false); err != nil {
				log.Printf("send: %v", err)
				return nil
			}
		}
	}
}

func newSession(conn *websocket.Conn) *session {
	s := &session{conn: conn, pending: make(map[string]chan frame)}
	s.handlers = map[string]func(frame){
		proto.EventConnected: func(f frame) {
			var data proto.ConnectedData
			if json.Unmarshal(f.Data, &data) == nil {
				fmt.Printf("connected as %s %s (%s)\n", data.User.FirstName, data.User.LastName, data.User.ID)
			}
		},
		proto.EventMessageSent: func(f frame) {
			var msg proto.MessageData
			if json.Unmarshal(f.Data, &msg) == nil {
				printMessage(msg)
			}
		},
		proto.EventServerError: func(f frame) {
			var data proto.ErrorData
			if json.Unmarshal(f.Data, &data) == nil {
				fmt.Printf("! %s: %s\n", data.Code, data.Message)
			}
		},
	}
	return s
}

func (s *session) readLoop(ctx context.Context) {
	for {
		var f frame
		if err := wsjson.Read(ctx, s.conn, &f); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if f.RequestID != "" && s.resolve(f) {
			continue
		}
		if h, ok := s.handlers[f.Event]; ok {
			h(f)
			continue
		}
		fmt.Printf("event=%s data=%s\n", f.Event, f.Data)
	}
}

// emit writes an event. With await set it blocks for the correlated reply.
func (s *session) emit(ctx context.Context, event string, payload any, await bool) (frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return frame{}, err
	}

	s.mu.Lock()
	s.nextID++
	id := strconv.Itoa(s.nextID)
	var reply chan frame
	if await {
		reply = make(chan frame, 1)
		s.pending[id] = reply
	}
	s.mu.Unlock()

	if err := wsjson.Write(ctx, s.conn, proto.Inbound{Event: event, Data: raw, RequestID: id}); err != nil {
		s.forget(id)
		return frame{}, err
	}
	if !await {
		return frame{}, nil
	}

	select {
	case f := <-reply:
		return f, nil
	case <-time.After(5 * time.Second):
		s.forget(id)
		return frame{}, fmt.Errorf("no reply to %s", event)
	case <-ctx.Done():
		s.forget(id)
		return frame{}, ctx.Err()
	}
}

func (s *session) resolve(f frame) bool {
	s.mu.Lock()
	reply, ok := s.pending[f.RequestID]
	delete(s.pending, f.RequestID)
	s.mu.Unlock()
	if ok {
		reply <- f
	}
	return ok
}

func (s *session) forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *session) printHistory(ctx context.Context, event, target string) error {
	f, err := s.emit(ctx, event, target, true)
	if err != nil {
		return err
	}
	if f.Event == proto.EventServerError {
		s.handlers[proto.EventServerError](f)
		return nil
	}

	var messages []proto.MessageData
	if err := json.Unmarshal(f.Data, &messages); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}
	fmt.Printf("-- %d messages --\n", len(messages))
	for _, msg := range messages {
		printMessage(msg)
	}
	return nil
}

func printMessage(msg proto.MessageData) {
	fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04"), msg.SenderID, msg.Text)
	for _, a := range msg.Attachments {
		fmt.Printf("    + %s\n", a)
	}
}
