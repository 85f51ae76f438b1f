// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package peer

import (
	"sync"
	"time"

	"github.com/fabricd/fabricd/fabriderr"
	"github.com/fabricd/fabricd/message"
	"github.com/fabricd/fabricd/signaling"
	"github.com/fabricd/fabricd/transport"
	"github.com/fabricd/fabricd/util"

	"github.com/bfix/gospel/concurrent"
	"github.com/bfix/gospel/logger"
	"github.com/google/uuid"
)

// Manager is the peer-connection layer of spec.md §4.4. It turns
// offers/answers relayed by the signaling server into direct data
// channels, and multiplexes Send() calls from the request layer over
// those channels by correlation id.
type Manager struct {
	self     util.EndpointID
	selfName string

	sigClient  *signaling.Client
	listenSpec string
	acceptSrv  transport.ChannelServer
	accept     chan transport.Channel

	handler RequestHandler

	handshakeTimeout time.Duration
	requestTimeout   time.Duration
	maxReconnect     int
	maxOutbound      int

	records *util.Map[uuid.UUID, *record]

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewManager builds a Manager bound to sigClient for signaling relay
// and listening at listenSpec for inbound peer data channels.
func NewManager(self util.EndpointID, selfName string, sigClient *signaling.Client, listenSpec string, handler RequestHandler) *Manager {
	return &Manager{
		self:             self,
		selfName:         selfName,
		sigClient:        sigClient,
		listenSpec:       listenSpec,
		handler:          handler,
		handshakeTimeout: DefaultHandshakeTimeout,
		requestTimeout:   DefaultRequestTimeout,
		maxReconnect:     DefaultMaxReconnect,
		maxOutbound:      DefaultMaxOutbound,
		records:          util.NewMap[uuid.UUID, *record](),
		accept:           make(chan transport.Channel, 8),
		stop:             make(chan struct{}),
	}
}

// Start opens the local peer-channel listener and begins dispatching
// signaling frames and inbound data connections.
func (m *Manager) Start() error {
	srv, err := transport.NewChannelServer(m.listenSpec, m.accept)
	if err != nil {
		return fabriderr.Wrap(fabriderr.KindChannelError, "failed to open peer listener", err)
	}
	m.acceptSrv = srv

	m.wg.Add(2)
	go m.acceptLoop()
	go m.signalLoop()
	return nil
}

// Stop closes the listener and fails every live record.
func (m *Manager) Stop() error {
	close(m.stop)
	if m.acceptSrv != nil {
		m.acceptSrv.Close()
	}

	recs := make([]*record, 0, m.records.Size())
	m.records.ProcessRange(func(_ uuid.UUID, rec *record, _ int) error {
		recs = append(recs, rec)
		return nil
	}, true)

	for _, rec := range recs {
		m.failChannel(rec, fabriderr.New(fabriderr.KindChannelError, "manager stopped"))
	}
	m.wg.Wait()
	return nil
}

func (m *Manager) getOrCreateRecord(peer util.EndpointID) *record {
	var rec *record
	m.records.Process(func(pid int) error {
		var ok bool
		rec, ok = m.records.Get(peer.UUID, pid)
		if !ok {
			rec = newRecord(peer)
			m.records.Put(peer.UUID, rec, pid)
		}
		return nil
	}, false)
	return rec
}

func (m *Manager) getRecord(peer util.EndpointID) *record {
	rec, _ := m.records.Get(peer.UUID, 0)
	return rec
}

// maybeDestroy removes rec from the table once it is CLOSED with no
// pending requests, per spec.md §3.
func (m *Manager) maybeDestroy(rec *record) {
	rec.mu.Lock()
	idle := rec.state == StateClosed && len(rec.pending) == 0 && len(rec.queued) == 0
	rec.mu.Unlock()
	if !idle {
		return
	}
	if cur, ok := m.records.Get(rec.peer.UUID, 0); ok && cur == rec {
		m.records.Delete(rec.peer.UUID, 0)
	}
}

//----------------------------------------------------------------------
// Send / Close
//----------------------------------------------------------------------

// Send delivers a Request to peer, blocking until a Reply arrives, the
// manager's request timeout expires, or the channel fails.
func (m *Manager) Send(peer util.EndpointID, kind message.RequestKind, objectID string, payload []byte) (*message.Reply, error) {
	rec := m.getOrCreateRecord(peer)

	rec.mu.Lock()
	switch rec.state {
	case StateIdle:
		rec.state = StateOffering
		rec.mu.Unlock()
		m.sendOffer(rec)
		rec.mu.Lock()
	case StateClosed:
		if rec.reconnects >= m.maxReconnect {
			rec.mu.Unlock()
			return nil, errMaxReconnect
		}
		rec.reconnects++
		rec.state = StateOffering
		rec.mu.Unlock()
		m.sendOffer(rec)
		rec.mu.Lock()
	}

	if len(rec.pending) >= m.maxOutbound {
		rec.mu.Unlock()
		return nil, fabriderr.New(fabriderr.KindPeerBackpressure, "outbound queue saturated")
	}

	corr := rec.nextCorr
	rec.nextCorr++
	slot := newCompletion()
	rec.pending[corr] = slot
	req := message.NewRequest(corr, kind, objectID, payload)

	if rec.state == StateOpen {
		select {
		case rec.outbox <- req:
		default:
			delete(rec.pending, corr)
			rec.mu.Unlock()
			return nil, fabriderr.New(fabriderr.KindPeerBackpressure, "outbound queue saturated")
		}
	} else {
		rec.queued = append(rec.queued, queuedRequest{corr: corr, req: req})
	}
	rec.mu.Unlock()

	select {
	case res := <-slot.ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.reply, nil
	case <-time.After(m.requestTimeout):
		rec.mu.Lock()
		delete(rec.pending, corr)
		rec.mu.Unlock()
		return nil, fabriderr.New(fabriderr.KindPeerTimeout, "request timed out")
	}
}

// Close tears down the record for peer, if any, failing its pending
// requests with a channel error.
func (m *Manager) Close(peer util.EndpointID) error {
	rec := m.getRecord(peer)
	if rec == nil {
		return nil
	}
	m.failChannel(rec, fabriderr.New(fabriderr.KindChannelError, "closed by caller"))
	return nil
}

//----------------------------------------------------------------------
// Offer / answer state machine
//----------------------------------------------------------------------

func (m *Manager) sendOffer(rec *record) {
	rec.mu.Lock()
	rec.stopHandshakeTimerLocked()
	rec.handshakeTimer = time.AfterFunc(m.handshakeTimeout, func() { m.onHandshakeTimeout(rec) })
	rec.mu.Unlock()

	offer := message.NewPeerConnectionMessage()
	message.SetUUID(offer.SourceUUID, m.self)
	offer.SourceName = m.selfName
	message.SetUUID(offer.PeerUUID, rec.peer)
	offer.Description = m.listenSpec

	if err := m.sigClient.Send(offer); err != nil {
		m.failChannel(rec, fabriderr.Wrap(fabriderr.KindChannelError, "failed to send offer", err))
	}
}

func (m *Manager) onHandshakeTimeout(rec *record) {
	rec.mu.Lock()
	if rec.state == StateOpen || rec.state == StateClosed {
		rec.mu.Unlock()
		return
	}
	rec.state = StateClosed
	rec.stopHandshakeTimerLocked()
	rec.failAllLocked(fabriderr.New(fabriderr.KindPeerTimeout, "handshake timed out"))
	rec.mu.Unlock()
	m.maybeDestroy(rec)
}

// signalLoop dispatches frames relayed by the signaling server.
func (m *Manager) signalLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			return
		case msg, ok := <-m.sigClient.Frames:
			if !ok {
				return
			}
			pcm, ok := msg.(*message.PeerConnectionMessage)
			if !ok {
				logger.Printf(logger.WARN, "[peer] unexpected signaling frame %T\n", msg)
				continue
			}
			m.handleSignalingFrame(pcm)
		}
	}
}

func (m *Manager) handleSignalingFrame(pcm *message.PeerConnectionMessage) {
	if pcm.Error != "" {
		target := message.GetUUID(pcm.PeerUUID)
		rec := m.getRecord(target)
		if rec == nil {
			return
		}
		rec.mu.Lock()
		if rec.state == StateOpen || rec.state == StateClosed {
			rec.mu.Unlock()
			return
		}
		rec.state = StateClosed
		rec.stopHandshakeTimerLocked()
		rec.failAllLocked(fabriderr.New(fabriderr.KindPeerUnknown, pcm.Error))
		rec.mu.Unlock()
		m.maybeDestroy(rec)
		return
	}

	source := message.GetUUID(pcm.SourceUUID)
	if source.Equal(m.self) {
		return
	}
	m.onInboundOffer(source, pcm.Description)
}

// onInboundOffer handles an offer (or answer, carried on the same
// frame shape) relayed from another endpoint, per the tie-break table
// of spec.md §4.4: the lower identity's offer wins a simultaneous
// offer race; the higher identity discards its own offer and answers.
func (m *Manager) onInboundOffer(peer util.EndpointID, description string) {
	rec := m.getOrCreateRecord(peer)

	rec.mu.Lock()
	switch rec.state {
	case StateIdle:
		rec.state = StateAnswering
		rec.stopHandshakeTimerLocked()
		rec.handshakeTimer = time.AfterFunc(m.handshakeTimeout, func() { m.onHandshakeTimeout(rec) })
		rec.mu.Unlock()
		m.answerOffer(rec, description)
	case StateOffering:
		if m.self.Less(peer) {
			// Our offer has the lower identity: it wins, ignore theirs.
			rec.mu.Unlock()
			return
		}
		rec.stopHandshakeTimerLocked()
		rec.state = StateAnswering
		rec.handshakeTimer = time.AfterFunc(m.handshakeTimeout, func() { m.onHandshakeTimeout(rec) })
		rec.mu.Unlock()
		m.answerOffer(rec, description)
	default:
		// ANSWERING, OPEN, or a stale CLOSED repeat: ignore.
		rec.mu.Unlock()
	}
}

// answerOffer dials the offerer's advertised address, bootstraps the
// new data channel with a handshake frame carrying our identity, and
// echoes an answer back through the signaling server.
func (m *Manager) answerOffer(rec *record, description string) {
	raw, err := transport.NewChannel(description)
	if err != nil {
		m.failChannel(rec, fabriderr.Wrap(fabriderr.KindChannelError, "failed to dial offer", err))
		return
	}
	ch := transport.NewMsgChannel(raw)
	sig := concurrent.NewSignaller()

	hs := message.NewPeerConnectionMessage()
	message.SetUUID(hs.SourceUUID, m.self)
	hs.SourceName = m.selfName
	message.SetUUID(hs.PeerUUID, rec.peer)
	if err := ch.Send(hs, sig); err != nil {
		ch.Close()
		m.failChannel(rec, fabriderr.Wrap(fabriderr.KindChannelError, "failed to send data-channel handshake", err))
		return
	}

	m.openRecord(rec, ch, sig)

	answer := message.NewPeerConnectionMessage()
	message.SetUUID(answer.SourceUUID, m.self)
	answer.SourceName = m.selfName
	message.SetUUID(answer.PeerUUID, rec.peer)
	answer.Description = m.listenSpec
	if err := m.sigClient.Send(answer); err != nil {
		logger.Printf(logger.WARN, "[peer] failed to echo answer for %s: %s\n", rec.peer, err)
	}
}

// acceptLoop binds inbound data connections, established by a remote
// answerer dialing our listener, back to the OFFERING record named by
// the handshake frame's source identity.
func (m *Manager) acceptLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			return
		case raw, ok := <-m.accept:
			if !ok || raw == nil {
				return
			}
			go m.handleInboundChannel(raw)
		}
	}
}

func (m *Manager) handleInboundChannel(raw transport.Channel) {
	ch := transport.NewMsgChannel(raw)
	sig := concurrent.NewSignaller()

	msg, err := ch.Receive(sig)
	if err != nil {
		ch.Close()
		return
	}
	hs, ok := msg.(*message.PeerConnectionMessage)
	if !ok {
		logger.Printf(logger.WARN, "[peer] inbound data channel sent non-handshake frame %T\n", msg)
		ch.Close()
		return
	}

	peerID := message.GetUUID(hs.SourceUUID)
	rec := m.getOrCreateRecord(peerID)

	rec.mu.Lock()
	if rec.state != StateOffering {
		rec.mu.Unlock()
		ch.Close()
		return
	}
	rec.mu.Unlock()

	m.openRecord(rec, ch, sig)
}

//----------------------------------------------------------------------
// OPEN record plumbing
//----------------------------------------------------------------------

func (m *Manager) openRecord(rec *record, ch *transport.MsgChannel, sig *concurrent.Signaller) {
	rec.mu.Lock()
	rec.stopHandshakeTimerLocked()
	rec.channel = ch
	rec.sig = sig
	rec.state = StateOpen
	rec.reconnects = 0
	outbox := make(chan message.Message, m.maxOutbound)
	rec.outbox = outbox
	queued := rec.queued
	rec.queued = nil
	rec.mu.Unlock()

	for _, q := range queued {
		outbox <- q.req
	}

	m.wg.Add(2)
	go m.writeLoop(rec, outbox, ch, sig)
	go m.readLoop(rec, ch, sig)
}

func (m *Manager) writeLoop(rec *record, outbox chan message.Message, ch *transport.MsgChannel, sig *concurrent.Signaller) {
	defer m.wg.Done()
	for req := range outbox {
		if err := ch.Send(req, sig); err != nil {
			m.failChannel(rec, fabriderr.Wrap(fabriderr.KindChannelError, "write failed", err))
			return
		}
	}
}

func (m *Manager) readLoop(rec *record, ch *transport.MsgChannel, sig *concurrent.Signaller) {
	defer m.wg.Done()
	for {
		msg, err := ch.Receive(sig)
		if err != nil {
			if fabriderr.Is(err, fabriderr.KindSerialization) {
				// Malformed frame: drop it, data channel stays open.
				logger.Printf(logger.WARN, "[peer] dropping malformed frame from %s: %s\n", rec.peer, err)
				continue
			}
			m.failChannel(rec, fabriderr.Wrap(fabriderr.KindChannelError, "read failed", err))
			return
		}
		switch x := msg.(type) {
		case *message.Reply:
			rec.mu.Lock()
			slot, ok := rec.pending[x.CorrelationID]
			if ok {
				delete(rec.pending, x.CorrelationID)
			}
			rec.mu.Unlock()
			if !ok {
				logger.Printf(logger.WARN, "[peer] dropping reply with unknown correlation id %d from %s\n", x.CorrelationID, rec.peer)
				continue
			}
			slot.complete(completionResult{reply: x})

		case *message.Request:
			reply := m.handler(x)
			if reply == nil {
				continue
			}
			reply.CorrelationID = x.CorrelationID
			rec.mu.Lock()
			if rec.state == StateOpen {
				select {
				case rec.outbox <- reply:
				default:
					logger.Printf(logger.WARN, "[peer] dropping reply to %s: outbound queue saturated\n", rec.peer)
				}
			}
			rec.mu.Unlock()

		default:
			logger.Printf(logger.WARN, "[peer] unexpected data-channel frame %T from %s\n", msg, rec.peer)
		}
	}
}

// failChannel transitions rec to CLOSED, closing its channel and
// outbox and failing every pending request. Idempotent.
func (m *Manager) failChannel(rec *record, err error) {
	rec.mu.Lock()
	if rec.state == StateClosed {
		rec.mu.Unlock()
		return
	}
	ch := rec.channel
	outbox := rec.outbox
	rec.state = StateClosed
	rec.channel = nil
	rec.outbox = nil
	rec.stopHandshakeTimerLocked()
	rec.failAllLocked(err)
	rec.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if outbox != nil {
		close(outbox)
	}
	m.maybeDestroy(rec)
}
