package service

import (
	"context"

	"github.com/rs/zerolog"

	"bilirelay/internal/core/domain"
	"bilirelay/internal/core/ports"
)

type pipeline interface {
	Run(ctx context.Context, msg domain.Message) *domain.Outcome
}

// Handler connects the pipeline to the host: it sends the composed message
// and then schedules cleanup of the files the message references.
type Handler struct {
	pipeline pipeline
	sender   ports.Sender
	cleaner  *Cleaner
	logger   zerolog.Logger
}

func NewHandler(p pipeline, sender ports.Sender, cleaner *Cleaner, logger zerolog.Logger) *Handler {
	return &Handler{
		pipeline: p,
		sender:   sender,
		cleaner:  cleaner,
		logger:   logger.With().Str("component", "handler").Logger(),
	}
}

// Register binds the handler to the direct and short link patterns.
func (h *Handler) Register(r ports.Registrar) {
	r.Register(VideoPattern, h.Handle)
	r.Register(ShortLinkPattern, h.Handle)
}

// Handle runs one message through the pipeline. Nothing is returned to the
// host: the handler either sends a message or stays silent.
func (h *Handler) Handle(ctx context.Context, msg domain.Message) {
	out := h.pipeline.Run(ctx, msg)

	log := h.logger.With().Str("outcome", out.Kind.String()).Logger()
	if out.Video != nil {
		log = log.With().Str("video_id", out.Video.ID).Logger()
	}

	if !out.HasMessage() {
		log.Debug().Msg("Nothing to send")
		return
	}

	if err := h.sender.Send(ctx, msg, out.Message); err != nil {
		log.Error().Err(err).Msg("Cannot send message")
	} else {
		log.Info().Msg("Message sent")
	}

	// Only after Send returns: the host may still be reading the video file
	// until then.
	if out.Artifact != nil {
		h.cleaner.Schedule(out.Artifact)
	}
}
