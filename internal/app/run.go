// Package app wires the session layer together: storage, the messaging
// client, the call manager, the outbox drainer, and config hot reload. It is
// the only package that imports both messaging and call; the two are joined
// by the signaler adapter in signaler.go.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stylecast/stylecast/internal/call"
	"github.com/stylecast/stylecast/internal/config"
	"github.com/stylecast/stylecast/internal/messaging"
	"github.com/stylecast/stylecast/internal/storage"
	"github.com/stylecast/stylecast/internal/util"
	"github.com/stylecast/stylecast/internal/wardrobe"
)

const (
	notifyInterval    = 5 * time.Second
	reconcileInterval = 15 * time.Second
)

// Options configures one Run.
type Options struct {
	SessionDir string
	CfgPath    string
	Cfg        config.Config

	// DialPeer, when set, places an outbound call to that peer on startup
	// using DialCallID. Empty means host mode: wait for incoming calls.
	DialPeer   string
	DialCallID string
}

// Run starts the session layer and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Cfg

	db, err := storage.Open(util.ResolvePath(opts.SessionDir, cfg.Storage.DBDir))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	api := wardrobe.NewAPIClient(cfg.API.BaseURL, db, time.Duration(cfg.API.TimeoutSec)*time.Second)

	msg := messaging.New(messaging.Config{
		ServerURL:  cfg.Messaging.ServerURL,
		TypingIdle: time.Duration(cfg.Messaging.TypingIdleSec) * time.Second,
		AllowGuest: cfg.Messaging.AllowGuest,
	}, db)

	err = msg.Initialize(ctx, messaging.Callbacks{
		OnNewMessage: func(m messaging.Message) {
			log.Printf("APP: [%s] %s: %s", m.RoomID, m.SenderName, m.Text)
		},
		OnUserJoined: func(re messaging.RoomEvent) {
			log.Printf("APP: %s joined %s", re.UserName, re.RoomID)
		},
		OnUserLeft: func(re messaging.RoomEvent) {
			log.Printf("APP: %s left %s", re.UserName, re.RoomID)
		},
		OnDisconnect: func(err error) {
			if err != nil {
				log.Printf("APP: messaging connection lost: %v", err)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("connect messaging: %w", err)
	}
	defer msg.Disconnect()

	mgr := call.New(&signalerAdapter{client: msg}, cfg.RTC, api, db, msg.Identity().UserID)
	defer mgr.Close()

	// One coordinator with no session drains the shared notification outbox,
	// including entries left over from earlier runs.
	drainer := wardrobe.NewCoordinator(api, db)
	drainer.StartNotifier(ctx, notifyInterval)

	mgr.OnIncoming(func(ic *call.IncomingCall) {
		log.Printf("APP: incoming call %s from %s — accepting", ic.CallID, ic.RemotePeer)
		sess, err := ic.Accept(ctx)
		if err != nil {
			log.Printf("APP: accept %s: %v", ic.CallID, err)
			return
		}
		sess.Wardrobe.StartReconciler(ctx, reconcileInterval)
		msg.JoinRoom(ic.CallID)
	})

	watcher, err := config.Watch(opts.CfgPath, func(next config.Config) {
		// Connection-level settings need a restart; log what changed takes
		// effect where it can.
		log.Printf("APP: config updated (api=%s, messaging=%s)", next.API.BaseURL, next.Messaging.ServerURL)
	})
	if err != nil {
		log.Printf("APP: config watch unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	if opts.DialPeer != "" {
		sess, err := mgr.StartCall(ctx, opts.DialCallID, opts.DialPeer)
		if err != nil {
			return fmt.Errorf("start call %s: %w", opts.DialCallID, err)
		}
		sess.Wardrobe.StartReconciler(ctx, reconcileInterval)
		msg.JoinRoom(opts.DialCallID)
	}

	log.Printf("APP: session layer running as %s", msg.Identity().UserID)
	<-ctx.Done()
	log.Printf("APP: shutting down")
	return nil
}
