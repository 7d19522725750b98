package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// WebsocketRemote implements the `Remote` contract over a websocket to
// the sync service. It owns reconnect, keepalive, and outbound
// buffering; the bridge on top of it stays fire-and-forget. All
// messages are json framed with a `type` tag.

const (
	wireAuth          = "auth"
	wireAuthResult    = "authResult"
	wireScan          = "scan"
	wireScanResult    = "scanResult"
	wireGet           = "get"
	wireGetResult     = "getResult"
	wireUpdateRecords = "updateRecords"
	wireCreateRecord  = "createRecord"
	wireDiff          = "diff"
	wirePresence      = "presence"
)

type wireMessage struct {
	Type      string       `json:"type"`
	Jwt       string       `json:"jwt,omitempty"`
	Success   bool         `json:"success,omitempty"`
	RequestId int          `json:"requestId,omitempty"`
	Key       RecordId     `json:"key,omitempty"`
	Record    Record       `json:"record,omitempty"`
	Ok        bool         `json:"ok,omitempty"`
	Records   []Record     `json:"records,omitempty"`
	Batch     *UpdateBatch `json:"batch,omitempty"`
	Diffs     []DiffEvent  `json:"diffs,omitempty"`
	ClientIds []string     `json:"clientIds,omitempty"`
}

type WebsocketRemoteSettings struct {
	WsHandshakeTimeout time.Duration
	AuthTimeout        time.Duration
	ReconnectTimeout   time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	SendBufferSize     int
}

func DefaultWebsocketRemoteSettings() *WebsocketRemoteSettings {
	return &WebsocketRemoteSettings{
		WsHandshakeTimeout: 2 * time.Second,
		AuthTimeout:        2 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		PingTimeout:        1 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        15 * time.Second,
		SendBufferSize:     256,
	}
}

type WebsocketRemote struct {
	ctx    context.Context
	cancel context.CancelFunc

	url   string
	byJwt string
	auth  *SessionAuth

	settings *WebsocketRemoteSettings

	// outbound mutations. survives reconnects, so edits made while
	// offline flush when the connection comes back.
	send chan *wireMessage

	stateLock     sync.Mutex
	online        bool
	nextRequestId int
	pendingReads  map[int]chan *wireMessage

	diffCallbacks     *CallbackList[DiffFunction]
	presenceCallbacks *CallbackList[PresenceFunction]
	onlineCallbacks   *CallbackList[OnlineChangeFunction]
}

func NewWebsocketRemoteWithDefaults(ctx context.Context, url string, byJwt string) (*WebsocketRemote, error) {
	return NewWebsocketRemote(ctx, url, byJwt, DefaultWebsocketRemoteSettings())
}

func NewWebsocketRemote(ctx context.Context, url string, byJwt string, settings *WebsocketRemoteSettings) (*WebsocketRemote, error) {
	auth, err := ParseSessionAuthUnverified(byJwt)
	if err != nil {
		return nil, err
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	remote := &WebsocketRemote{
		ctx:               cancelCtx,
		cancel:            cancel,
		url:               url,
		byJwt:             byJwt,
		auth:              auth,
		settings:          settings,
		send:              make(chan *wireMessage, settings.SendBufferSize),
		pendingReads:      map[int]chan *wireMessage{},
		diffCallbacks:     NewCallbackList[DiffFunction](),
		presenceCallbacks: NewCallbackList[PresenceFunction](),
		onlineCallbacks:   NewCallbackList[OnlineChangeFunction](),
	}
	go remote.run()

	return remote, nil
}

func (self *WebsocketRemote) ClientId() string {
	return self.auth.ClientId
}

func (self *WebsocketRemote) UserId() string {
	return self.auth.UserId
}

func (self *WebsocketRemote) RoomId() string {
	return self.auth.RoomId
}

func (self *WebsocketRemote) run() {
	for {
		select {
		case <-self.ctx.Done():
			return
		default:
		}

		ws, err := self.connect()
		if err != nil {
			glog.Infof("[ws]connect error = %s\n", err)
		} else {
			self.setOnline(true)
			err = self.pump(ws)
			self.setOnline(false)
			self.failPendingReads()
			glog.Infof("[ws]disconnected = %s\n", err)
			ws.Close()
		}

		select {
		case <-self.ctx.Done():
			return
		case <-time.After(self.settings.ReconnectTimeout):
		}
	}
}

func (self *WebsocketRemote) connect() (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: self.settings.WsHandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(self.ctx, self.url, http.Header{})
	if err != nil {
		return nil, err
	}

	success := false
	defer func() {
		if !success {
			ws.Close()
		}
	}()

	ws.SetWriteDeadline(time.Now().Add(self.settings.AuthTimeout))
	err = ws.WriteJSON(&wireMessage{
		Type: wireAuth,
		Jwt:  self.byJwt,
	})
	if err != nil {
		return nil, err
	}

	ws.SetReadDeadline(time.Now().Add(self.settings.AuthTimeout))
	var authResult wireMessage
	err = ws.ReadJSON(&authResult)
	if err != nil {
		return nil, err
	}
	if authResult.Type != wireAuthResult || !authResult.Success {
		return nil, ErrAuthFailed
	}

	success = true
	return ws, nil
}

// pump runs the send and receive loops until the connection fails
func (self *WebsocketRemote) pump(ws *websocket.Conn) error {
	pumpCtx, pumpCancel := context.WithCancel(self.ctx)
	defer pumpCancel()

	errs := make(chan error, 2)

	go func() {
		defer pumpCancel()

		for {
			select {
			case <-pumpCtx.Done():
				return
			case message := <-self.send:
				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := ws.WriteJSON(message); err != nil {
					errs <- err
					return
				}
				if glog.V(2) {
					glog.Infof("[ws]-> %s\n", wireJson(message))
				}
			case <-time.After(self.settings.PingTimeout):
				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					errs <- err
					return
				}
			}
		}
	}()

	go func() {
		defer pumpCancel()

		ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		ws.SetPongHandler(func(string) error {
			ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
			return nil
		})

		for {
			var message wireMessage
			if err := ws.ReadJSON(&message); err != nil {
				errs <- err
				return
			}
			ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
			glog.V(2).Infof("[ws]%s<-\n", message.Type)
			self.receive(&message)
		}
	}()

	<-pumpCtx.Done()
	select {
	case err := <-errs:
		return err
	default:
		return ErrRemoteClosed
	}
}

func (self *WebsocketRemote) receive(message *wireMessage) {
	switch message.Type {
	case wireScanResult, wireGetResult:
		self.stateLock.Lock()
		pending, ok := self.pendingReads[message.RequestId]
		delete(self.pendingReads, message.RequestId)
		self.stateLock.Unlock()
		if ok {
			pending <- message
		}
	case wireDiff:
		for _, diffCallback := range self.diffCallbacks.Get() {
			callback := diffCallback
			safeInvoke(func() {
				callback(message.Diffs)
			})
		}
	case wirePresence:
		for _, presenceCallback := range self.presenceCallbacks.Get() {
			callback := presenceCallback
			safeInvoke(func() {
				callback(message.ClientIds)
			})
		}
	default:
		glog.Infof("[ws]unknown message type = %s\n", message.Type)
	}
}

// request sends one read request and waits for its response
func (self *WebsocketRemote) request(ctx context.Context, message *wireMessage) (*wireMessage, error) {
	pending := make(chan *wireMessage, 1)

	self.stateLock.Lock()
	self.nextRequestId += 1
	requestId := self.nextRequestId
	message.RequestId = requestId
	self.pendingReads[requestId] = pending
	self.stateLock.Unlock()

	removePending := func() {
		self.stateLock.Lock()
		delete(self.pendingReads, requestId)
		self.stateLock.Unlock()
	}

	select {
	case self.send <- message:
	case <-self.ctx.Done():
		removePending()
		return nil, ErrRemoteClosed
	case <-ctx.Done():
		removePending()
		return nil, ctx.Err()
	}

	select {
	case response := <-pending:
		if response == nil {
			return nil, ErrRemoteClosed
		}
		return response, nil
	case <-self.ctx.Done():
		removePending()
		return nil, ErrRemoteClosed
	case <-ctx.Done():
		removePending()
		return nil, ctx.Err()
	case <-time.After(self.settings.ReadTimeout):
		removePending()
		return nil, ErrReadTimeout
	}
}

func (self *WebsocketRemote) failPendingReads() {
	self.stateLock.Lock()
	pendingReads := self.pendingReads
	self.pendingReads = map[int]chan *wireMessage{}
	self.stateLock.Unlock()

	for _, pending := range pendingReads {
		pending <- nil
	}
}

type wsReadTransaction struct {
	ctx    context.Context
	remote *WebsocketRemote
}

func (self *wsReadTransaction) Get(key RecordId) (Record, bool, error) {
	response, err := self.remote.request(self.ctx, &wireMessage{
		Type: wireGet,
		Key:  key,
	})
	if err != nil {
		return nil, false, err
	}
	return response.Record, response.Ok, nil
}

func (self *wsReadTransaction) ScanValues() ([]Record, error) {
	response, err := self.remote.request(self.ctx, &wireMessage{
		Type: wireScan,
	})
	if err != nil {
		return nil, err
	}
	return response.Records, nil
}

func (self *WebsocketRemote) Read(ctx context.Context, fn func(tx ReadTransaction) error) error {
	return fn(&wsReadTransaction{
		ctx:    ctx,
		remote: self,
	})
}

func (self *WebsocketRemote) UpdateRecords(batch *UpdateBatch) {
	self.enqueue(&wireMessage{
		Type:  wireUpdateRecords,
		Batch: batch,
	})
}

func (self *WebsocketRemote) CreateRecord(record Record) {
	self.enqueue(&wireMessage{
		Type:   wireCreateRecord,
		Record: record,
	})
}

func (self *WebsocketRemote) enqueue(message *wireMessage) {
	select {
	case self.send <- message:
	case <-self.ctx.Done():
	default:
		// the buffer absorbs short offline windows. a full buffer
		// means a long outage, and the next full resync supersedes
		// anything dropped here.
		glog.Infof("[ws]send buffer full, dropping %s\n", message.Type)
	}
}

func (self *WebsocketRemote) Watch(callback DiffFunction) func() {
	callbackId := self.diffCallbacks.Add(callback)
	return func() {
		self.diffCallbacks.Remove(callbackId)
	}
}

func (self *WebsocketRemote) SubscribeToPresence(callback PresenceFunction) func() {
	callbackId := self.presenceCallbacks.Add(callback)
	return func() {
		self.presenceCallbacks.Remove(callbackId)
	}
}

func (self *WebsocketRemote) AddOnlineChangeCallback(callback OnlineChangeFunction) func() {
	callbackId := self.onlineCallbacks.Add(callback)
	online := func() bool {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		return self.online
	}()
	safeInvoke(func() {
		callback(online)
	})
	return func() {
		self.onlineCallbacks.Remove(callbackId)
	}
}

func (self *WebsocketRemote) setOnline(online bool) {
	changed := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if self.online != online {
			self.online = online
			changed = true
		}
	}()
	if !changed {
		return
	}
	for _, onlineCallback := range self.onlineCallbacks.Get() {
		callback := onlineCallback
		safeInvoke(func() {
			callback(online)
		})
	}
}

func (self *WebsocketRemote) Close() {
	self.cancel()
}

var _ Remote = (*WebsocketRemote)(nil)

// marshal helper shared by implementations that log wire traffic
func wireJson(message *wireMessage) string {
	b, err := json.Marshal(message)
	if err != nil {
		return fmt.Sprintf("marshal error: %s", err)
	}
	return string(b)
}
