package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"retroim/internal/domain"
	"retroim/internal/service"
	"retroim/internal/session"
)

// command is the inbound frame. Fields beyond Type are per-command; unused
// ones stay zero.
type command struct {
	Type string `json:"type"`

	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`

	Substatus string  `json:"substatus,omitempty"`
	Message   *string `json:"message,omitempty"`
	Name      *string `json:"name,omitempty"`

	List      string `json:"list,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	GroupName string `json:"group_name,omitempty"`

	ChatID  string `json:"chat_id,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// Local reply frames; they ride the same envelope as core events.

type errorReply struct {
	Command string `json:"command"`
	Code    string `json:"code"`
}

func (errorReply) EventType() string { return "error" }

type okReply struct {
	Command string `json:"command"`
}

func (okReply) EventType() string { return "ok" }

type contactEntry struct {
	UUID   string        `json:"uuid"`
	Name   string        `json:"name"`
	Lists  []string      `json:"lists"`
	Groups []string      `json:"groups"`
	Status domain.Status `json:"status"`
}

type groupEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsFavorite bool   `json:"is_favorite"`
}

type authenticatedReply struct {
	UUID     string         `json:"uuid"`
	Email    string         `json:"email"`
	Name     string         `json:"name"`
	Contacts []contactEntry `json:"contacts"`
	Groups   []groupEntry   `json:"groups"`
}

func (authenticatedReply) EventType() string { return "authenticated" }

type chatCreatedReply struct {
	ChatID string `json:"chat_id"`
}

func (chatCreatedReply) EventType() string { return "chat_created" }

type chatRosterReply struct {
	ChatID       string   `json:"chat_id"`
	Participants []string `json:"participants"`
}

func (chatRosterReply) EventType() string { return "chat_roster" }

type groupCreatedReply struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (groupCreatedReply) EventType() string { return "group_created" }

// registry tracks live chat rooms by id so joiners can find them. Rooms are
// dropped once empty.
type registry struct {
	mu    sync.Mutex
	rooms map[string]*session.Chat
}

func newRegistry() *registry {
	return &registry{rooms: make(map[string]*session.Chat)}
}

func (r *registry) add(c *session.Chat) {
	r.mu.Lock()
	r.rooms[c.ID] = c
	r.mu.Unlock()
}

func (r *registry) get(id string) *session.Chat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[id]
}

func (r *registry) dropIfEmpty(c *session.Chat) {
	r.mu.Lock()
	if c.Empty() {
		delete(r.rooms, c.ID)
	}
	r.mu.Unlock()
}

// MakeHandler builds the /ws endpoint: upgrade, then a JSON command loop
// driving the backend until the connection drops.
func MakeHandler(log *zap.Logger, backend *service.Backend, allowedOrigins []string, idleTimeout time.Duration) http.HandlerFunc {
	chats := newRegistry()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		t := newTransport(conn, idleTimeout)
		sess := session.New(t)

		h := &connHandler{
			log:     log.With(zap.String("session", sess.ID)),
			backend: backend,
			chats:   chats,
			conn:    conn,
			t:       t,
			sess:    sess,
		}
		defer h.teardown()
		h.run(r)
	}
}

type connHandler struct {
	log     *zap.Logger
	backend *service.Backend
	chats   *registry
	conn    *websocket.Conn
	t       *transport
	sess    *session.Session
}

// teardown runs when the read loop ends for any reason. Deregistering the
// session leaves its room via the backend; if that emptied the room, the
// registry reference must go too, or abruptly dropped rooms pile up.
func (h *connHandler) teardown() {
	chat := h.sess.Chat()
	h.backend.OnSessionClosed(h.sess)
	if chat != nil {
		h.chats.dropIfEmpty(chat)
	}
}

func (h *connHandler) run(r *http.Request) {
	for {
		var cmd command
		if err := h.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("read loop ended", zap.Error(err))
			}
			return
		}
		h.t.touch()

		if !h.dispatch(cmd) {
			return
		}
	}
}

// dispatch runs one command; a false return terminates the connection.
func (h *connHandler) dispatch(cmd command) bool {
	if cmd.Type == "auth" {
		return h.handleAuth(cmd)
	}
	if h.sess.User() == nil {
		h.sendError(cmd.Type, "not_authenticated")
		return false
	}

	switch cmd.Type {
	case "status":
		h.handleStatus(cmd)
	case "contact_add":
		h.handleContactAdd(cmd)
	case "contact_remove":
		return h.handleContactRemove(cmd)
	case "group_add":
		h.handleGroupAdd(cmd)
	case "group_remove":
		h.handleGroupRemove(cmd)
	case "group_contact_add":
		h.handleGroupContact(cmd, true)
	case "group_contact_remove":
		h.handleGroupContact(cmd, false)
	case "chat_create":
		h.handleChatCreate(cmd)
	case "chat_invite":
		h.handleChatInvite(cmd)
	case "chat_join":
		h.handleChatJoin(cmd)
	case "chat_send":
		h.handleChatSend(cmd)
	case "chat_leave":
		h.handleChatLeave(cmd)
	default:
		h.sendError(cmd.Type, "unknown_command")
	}
	return true
}

// handleAuth runs both login phases back to back on this connection. The
// MSNP front-end splits the phases across USR frames; here the split only
// shows in the backend API. Any failure terminates the handshake.
func (h *connHandler) handleAuth(cmd command) bool {
	if h.sess.User() != nil {
		h.sendError(cmd.Type, "already_authenticated")
		return true
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()

	token, err := h.backend.LoginBegin(ctx, cmd.Email, cmd.Password)
	if err != nil {
		h.log.Error("login begin failed", zap.Error(err))
		h.sendError(cmd.Type, "server_error")
		return false
	}
	if token == "" {
		h.sendError(cmd.Type, "auth_failed")
		return false
	}

	user, err := h.backend.LoginFinish(ctx, h.sess, cmd.Email, token)
	if err != nil {
		h.log.Error("login finish failed", zap.Error(err))
		h.sendError(cmd.Type, "server_error")
		return false
	}
	if user == nil {
		h.sendError(cmd.Type, "auth_failed")
		return false
	}

	h.send(h.rosterReply(user))
	return true
}

func (h *connHandler) rosterReply(user *domain.User) authenticatedReply {
	reply := authenticatedReply{
		UUID:  user.UUID,
		Email: user.Email,
		Name:  user.Status.Name,
	}
	for _, ctc := range user.Detail.Contacts {
		entry := contactEntry{
			UUID:   ctc.UUID,
			Name:   ctc.Name,
			Status: ctc.Status,
		}
		for _, lst := range []domain.Lst{domain.ListFL, domain.ListAL, domain.ListBL, domain.ListRL, domain.ListPL} {
			if ctc.Lists.Has(lst) {
				entry.Lists = append(entry.Lists, lst.String())
			}
		}
		for gid := range ctc.Groups {
			entry.Groups = append(entry.Groups, gid)
		}
		reply.Contacts = append(reply.Contacts, entry)
	}
	for _, g := range user.Detail.Groups {
		reply.Groups = append(reply.Groups, groupEntry{ID: g.ID, Name: g.Name, IsFavorite: g.IsFavorite})
	}
	return reply
}

func (h *connHandler) handleStatus(cmd command) {
	fields := service.MeUpdateFields{
		Name:    cmd.Name,
		Message: cmd.Message,
	}
	if cmd.Substatus != "" {
		sub, ok := domain.ParseSubstatus(cmd.Substatus)
		if !ok {
			h.sendError(cmd.Type, "bad_substatus")
			return
		}
		fields.Substatus = &sub
	}
	if err := h.backend.MeUpdate(h.sess, fields); err != nil {
		h.sendError(cmd.Type, errorCode(err))
		return
	}
	h.send(okReply{Command: cmd.Type})
}

func (h *connHandler) handleContactAdd(cmd command) {
	lst, ok := domain.ListFromLabel(cmd.List)
	if !ok {
		h.sendError(cmd.Type, "bad_list")
		return
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()

	uuid, err := h.backend.Cache().GetUUID(ctx, cmd.Email)
	if err != nil {
		h.log.Error("uuid lookup failed", zap.Error(err))
		h.sendError(cmd.Type, "server_error")
		return
	}
	if uuid == "" {
		h.sendError(cmd.Type, errorCode(domain.ErrUserDoesNotExist))
		return
	}

	name := cmd.Email
	if cmd.Name != nil {
		name = *cmd.Name
	}
	if _, _, err := h.backend.ContactAdd(ctx, h.sess, uuid, lst, name); err != nil {
		h.sendError(cmd.Type, errorCode(err))
		return
	}
	h.send(okReply{Command: cmd.Type})
}

// handleContactRemove maps the list label and delegates. Targeting the
// reverse list is a protocol violation and drops the connection.
func (h *connHandler) handleContactRemove(cmd command) bool {
	lst, ok := domain.ListFromLabel(cmd.List)
	if !ok {
		h.sendError(cmd.Type, "bad_list")
		return true
	}
	if lst.Has(domain.ListRL) {
		h.sendError(cmd.Type, "server_error")
		return false
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()

	uuid, err := h.backend.Cache().GetUUID(ctx, cmd.Email)
	if err != nil {
		h.log.Error("uuid lookup failed", zap.Error(err))
		h.sendError(cmd.Type, "server_error")
		return true
	}
	if uuid == "" {
		h.sendError(cmd.Type, errorCode(domain.ErrUserDoesNotExist))
		return true
	}

	if err := h.backend.ContactRemove(ctx, h.sess, uuid, lst); err != nil {
		h.sendError(cmd.Type, errorCode(err))
		if errors.Is(err, domain.ErrServerError) {
			return false
		}
		return true
	}
	h.send(okReply{Command: cmd.Type})
	return true
}

func (h *connHandler) handleGroupAdd(cmd command) {
	g, err := h.backend.GroupAdd(h.sess, cmd.GroupName)
	if err != nil {
		h.sendError(cmd.Type, errorCode(err))
		return
	}
	h.send(groupCreatedReply{ID: g.ID, Name: g.Name})
}

func (h *connHandler) handleGroupRemove(cmd command) {
	if err := h.backend.GroupRemove(h.sess, cmd.GroupID); err != nil {
		h.sendError(cmd.Type, errorCode(err))
		return
	}
	h.send(okReply{Command: cmd.Type})
}

func (h *connHandler) handleGroupContact(cmd command, add bool) {
	ctx, cancel := contextWithTimeout()
	defer cancel()

	uuid, err := h.backend.Cache().GetUUID(ctx, cmd.Email)
	if err != nil {
		h.log.Error("uuid lookup failed", zap.Error(err))
		h.sendError(cmd.Type, "server_error")
		return
	}
	if uuid == "" {
		h.sendError(cmd.Type, errorCode(domain.ErrUserDoesNotExist))
		return
	}

	if add {
		err = h.backend.GroupContactAdd(h.sess, cmd.GroupID, uuid)
	} else {
		err = h.backend.GroupContactRemove(h.sess, cmd.GroupID, uuid)
	}
	if err != nil {
		h.sendError(cmd.Type, errorCode(err))
		return
	}
	h.send(okReply{Command: cmd.Type})
}

func (h *connHandler) handleChatCreate(cmd command) {
	if h.sess.Chat() != nil {
		h.sendError(cmd.Type, "already_in_chat")
		return
	}
	c := session.NewChat()
	h.chats.add(c)
	c.AddSession(h.sess)
	h.send(chatCreatedReply{ChatID: c.ID})
}

func (h *connHandler) handleChatInvite(cmd command) {
	c := h.sess.Chat()
	if c == nil {
		h.sendError(cmd.Type, "not_in_chat")
		return
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()

	user := h.sess.User()
	if err := h.backend.NotifyCall(ctx, user.UUID, cmd.Email, c.ID); err != nil {
		h.sendError(cmd.Type, errorCode(err))
		return
	}
	h.send(okReply{Command: cmd.Type})
}

// handleChatJoin redeems an invite token. The token was minted for this
// exact session; a mismatch means a stolen or stale token.
func (h *connHandler) handleChatJoin(cmd command) {
	if h.sess.Chat() != nil {
		h.sendError(cmd.Type, "already_in_chat")
		return
	}
	minted := h.backend.RedeemSessionToken(service.TokenPurposeChatInvite, cmd.Token)
	if minted != h.sess {
		h.sendError(cmd.Type, "bad_token")
		return
	}
	c := h.chats.get(cmd.ChatID)
	if c == nil {
		h.sendError(cmd.Type, "chat_not_found")
		return
	}
	c.AddSession(h.sess)

	roster := c.Roster(h.sess)
	reply := chatRosterReply{ChatID: c.ID}
	for _, e := range roster {
		reply.Participants = append(reply.Participants, e.User.Email)
	}
	h.send(reply)
}

func (h *connHandler) handleChatSend(cmd command) {
	c := h.sess.Chat()
	if c == nil {
		h.sendError(cmd.Type, "not_in_chat")
		return
	}
	c.SendToEveryone(h.sess, []byte(cmd.Payload))
}

func (h *connHandler) handleChatLeave(cmd command) {
	c := h.sess.Chat()
	if c == nil {
		h.sendError(cmd.Type, "not_in_chat")
		return
	}
	c.OnLeave(h.sess)
	h.chats.dropIfEmpty(c)
	h.send(okReply{Command: cmd.Type})
}

func (h *connHandler) send(ev domain.Event) {
	if err := h.sess.Send(ev); err != nil {
		h.log.Warn("reply send failed", zap.String("event", ev.EventType()), zap.Error(err))
	}
}

func (h *connHandler) sendError(cmdType, code string) {
	h.send(errorReply{Command: cmdType, Code: code})
}

// contextWithTimeout bounds per-command storage I/O; the read loop itself
// has no deadline, the idle reaper covers dead peers.
func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// errorCode flattens domain sentinels into wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrGroupNameTooLong):
		return "group_name_too_long"
	case errors.Is(err, domain.ErrGroupDoesNotExist):
		return "group_does_not_exist"
	case errors.Is(err, domain.ErrCannotRemoveSpecialGroup):
		return "cannot_remove_special_group"
	case errors.Is(err, domain.ErrContactDoesNotExist):
		return "contact_does_not_exist"
	case errors.Is(err, domain.ErrContactAlreadyOnList):
		return "contact_already_on_list"
	case errors.Is(err, domain.ErrContactNotOnList):
		return "contact_not_on_list"
	case errors.Is(err, domain.ErrUserDoesNotExist):
		return "user_does_not_exist"
	case errors.Is(err, domain.ErrContactNotOnline):
		return "contact_not_online"
	default:
		return "server_error"
	}
}
