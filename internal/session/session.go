package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/backend"
	"github.com/kopertop/ai-dnd-expo-sub002/internal/engine"
	"github.com/kopertop/ai-dnd-expo-sub002/internal/storage"
	"github.com/kopertop/ai-dnd-expo-sub002/internal/transport"
	"github.com/kopertop/ai-dnd-expo-sub002/pkg/logger"
)

// Session связывает бэкенд, транспорт и координатор в один жизненный цикл.
//
// Join поднимает все части и запускает перекачку авторитетных снапшотов
// в координатор; Close гасит фоновые таймеры и горутины как единое целое -
// забытый таймер продолжал бы опрашивать сервер после ухода с экрана.
type Session struct {
	cfg      Config
	me       engine.Participant
	backend  *backend.Client
	trans    *transport.SyncTransport
	coord    *engine.Coordinator
	recorder *storage.Recorder // nil = запись выключена
	log      *logrus.Entry

	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// Join подключает участника к сессии по инвайт-коду
func Join(ctx context.Context, cfg Config) (*Session, error) {
	me, sessionID, err := ParseParticipant(cfg.Token)
	if err != nil {
		return nil, err
	}

	client, err := backend.New(cfg.BackendURL, cfg.InviteCode, cfg.Token)
	if err != nil {
		return nil, err
	}

	trans := transport.New(transport.Config{
		SocketURL:            cfg.SocketURL,
		SessionID:            sessionID,
		Token:                cfg.Token,
		InviteCode:           cfg.InviteCode,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		ReconnectMultiplier:  cfg.ReconnectMultiplier,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		PollInterval:         cfg.PollInterval,
	}, client)

	s := &Session{
		cfg:     cfg,
		me:      me,
		backend: client,
		trans:   trans,
		coord:   engine.NewCoordinator(client, me),
		log: logger.Log.WithFields(logrus.Fields{
			"component": "session",
			"invite":    cfg.InviteCode,
		}),
	}

	if cfg.RecordDir != "" {
		rec, err := storage.NewRecorder(cfg.RecordDir, cfg.InviteCode)
		if err != nil {
			return nil, err
		}
		s.recorder = rec
		s.log.WithField("path", rec.Path()).Info("Session recording enabled")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	trans.Start(ctx)

	s.wg.Add(1)
	go s.ingestLoop(ctx)

	if s.recorder != nil {
		s.wg.Add(1)
		go s.recordLoop(ctx)
	}

	s.log.WithFields(logrus.Fields{
		"participant": me.ID,
		"is_dm":       me.IsDM,
	}).Info("Joined session")
	return s, nil
}

// Coordinator возвращает координатор действий участника
func (s *Session) Coordinator() *engine.Coordinator {
	return s.coord
}

// Transport возвращает канал синхронизации (режим, версия, Fatal)
func (s *Session) Transport() *transport.SyncTransport {
	return s.trans
}

// Me возвращает участника этой сессии
func (s *Session) Me() engine.Participant {
	return s.me
}

// Fatal отдает первую фатальную ошибку сессии
func (s *Session) Fatal() <-chan error {
	return s.trans.Fatal()
}

// ingestLoop перекачивает авторитетные снапшоты в координатор
func (s *Session) ingestLoop(ctx context.Context) {
	defer s.wg.Done()

	sub := s.trans.Subscribe()
	defer s.trans.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub:
			if !ok {
				return
			}
			s.coord.ApplySnapshot(snap)
			if s.recorder != nil {
				if err := s.recorder.RecordSnapshot(snap); err != nil {
					s.log.WithError(err).Warn("Failed to record snapshot")
				}
			}
		}
	}
}

// recordLoop дописывает в журнал подтвержденные действия
func (s *Session) recordLoop(ctx context.Context) {
	defer s.wg.Done()

	events := s.coord.Events()
	defer s.coord.StopEvents(events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != engine.EventConfirmed {
				continue
			}
			if err := s.recorder.RecordAction(ev.Kind, ev.TargetID, nil); err != nil {
				s.log.WithError(err).Warn("Failed to record action")
			}
		}
	}
}

// Close гасит транспорт, координатор и запись. Повторный вызов безопасен.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.trans.Close()
		s.wg.Wait()
		s.coord.Close()
		if s.recorder != nil {
			if err := s.recorder.Close(); err != nil {
				s.log.WithError(err).Warn("Failed to close session record")
			}
		}
		s.log.Info("Session closed")
	})
}
