package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/VoiceClient/internal/adapters/http"
	"github.com/dkeye/VoiceClient/internal/adapters/rtc"
	sigclient "github.com/dkeye/VoiceClient/internal/adapters/signal"
	"github.com/dkeye/VoiceClient/internal/app/engine"
	"github.com/dkeye/VoiceClient/internal/config"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/livekit/protocol/livekit"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	sigOpts, err := cfg.SignalOptions()
	if err != nil {
		log.Fatal().Err(err).Msg("signal options")
	}
	factory, err := rtc.NewFactory(cfg.FactoryOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("media engine")
	}

	eng := engine.New(sigclient.NewClient(sigOpts), factory.NewPeer, &logListener{stop: cancel}, cfg.EngineOptions())
	defer eng.Close()

	joinCtx, joinCancel := context.WithTimeout(ctx, sigOpts.ConnectTimeout+sigOpts.JoinTimeout)
	err = eng.Join(joinCtx, cfg.URL, cfg.Token, cfg.JoinOptions())
	joinCancel()
	if err != nil {
		log.Error().Err(err).Str("url", cfg.URL).Msg("join failed")
		return
	}

	r := router.SetupRouter(router.RouterConfig{
		Mode:         cfg.Mode,
		RateLimit:    cfg.RateLimit,
		RateInterval: cfg.RateInterval,
	}, eng)
	srv := &http.Server{
		Addr:    cfg.ControlAddr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", cfg.ControlAddr).Msg("control API started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("control API forced to shutdown")
	}
	eng.Close()
	select {
	case <-eng.Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("listener events not drained")
	}
	log.Info().Msg("Client exited gracefully")
}

// logListener reports engine events and stops the process once the room is gone.
type logListener struct {
	stop context.CancelFunc
}

func (l *logListener) OnJoined(join *livekit.JoinResponse) {
	log.Info().
		Str("room", join.GetRoom().GetName()).
		Str("identity", join.GetParticipant().GetIdentity()).
		Int("others", len(join.GetOtherParticipants())).
		Msg("joined")
}

func (l *logListener) OnParticipantsUpdated(participants []domain.Participant) {
	log.Info().Int("count", len(participants)).Msg("participants updated")
}

func (l *logListener) OnSpeakersChanged(speakers []*livekit.SpeakerInfo) {
	ids := make([]string, 0, len(speakers))
	for _, s := range speakers {
		if s.GetActive() {
			ids = append(ids, s.GetSid())
		}
	}
	log.Debug().Strs("active", ids).Msg("speakers changed")
}

func (l *logListener) OnRemoteMuteChanged(trackSID string, muted bool) {
	log.Info().Str("track", trackSID).Bool("muted", muted).Msg("track muted by server")
}

func (l *logListener) OnLocalTrackPublished(cid string, track *livekit.TrackInfo) {
	log.Info().Str("cid", cid).Str("sid", track.GetSid()).Str("kind", track.GetType().String()).Msg("local track published")
}

func (l *logListener) OnTrackSubscribed(trackID, kind string) {
	log.Info().Str("track", trackID).Str("kind", kind).Msg("track subscribed")
}

func (l *logListener) OnDataChannel(label string) {
	log.Debug().Str("label", label).Msg("data channel")
}

func (l *logListener) OnDisconnected(reason string) {
	log.Warn().Str("reason", reason).Msg("disconnected")
	l.stop()
}
