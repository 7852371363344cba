package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/vncsmyrnk/servervote/internal/core/domain"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
)

const targetsPageSize = 20

type submission struct {
	Name    string `validate:"required,max=100"`
	Address string `validate:"required,max=253,hostname_rfc1123|ip"`
	Port    int    `validate:"min=1,max=65535"`
}

type endpointSubmission struct {
	Host      string `validate:"required,max=253,hostname_rfc1123|ip"`
	Port      int    `validate:"min=1,max=65535"`
	PublicKey string `validate:"required,base64"`
}

type targetService struct {
	repo     ports.TargetRepository
	notifier ports.Notifier
	clock    ports.Clock
	validate *validator.Validate
}

func NewTargetService(repo ports.TargetRepository, notifier ports.Notifier, clock ports.Clock) ports.TargetService {
	return &targetService{
		repo:     repo,
		notifier: notifier,
		clock:    clock,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *targetService) Submit(ctx context.Context, input ports.CreateTargetInput) (*domain.Target, error) {
	if input.Port == 0 {
		input.Port = domain.DefaultGamePort
	}

	sub := submission{
		Name:    strings.TrimSpace(input.Name),
		Address: strings.TrimSpace(input.Address),
		Port:    input.Port,
	}
	if err := s.validate.Struct(sub); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidTarget, err)
	}

	endpoint, err := s.endpoint(input.Notification)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	target := &domain.Target{
		ID:           "server_" + uuid.NewString(),
		Name:         sub.Name,
		Address:      sub.Address,
		Port:         sub.Port,
		Notification: endpoint,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Save(ctx, target); err != nil {
		return nil, err
	}
	return target, nil
}

func (s *targetService) endpoint(in *domain.NotificationEndpoint) (*domain.NotificationEndpoint, error) {
	if in == nil || (in.Host == "" && in.Port == 0 && in.PublicKey == "") {
		return nil, nil
	}

	sub := endpointSubmission{
		Host:      strings.TrimSpace(in.Host),
		Port:      in.Port,
		PublicKey: strings.TrimSpace(in.PublicKey),
	}
	if err := s.validate.Struct(sub); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidEndpoint, err)
	}

	endpoint := &domain.NotificationEndpoint{Host: sub.Host, Port: sub.Port, PublicKey: sub.PublicKey}
	if s.notifier != nil {
		if err := s.notifier.ValidateEndpoint(*endpoint); err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidEndpoint, err)
		}
	}
	return endpoint, nil
}

func (s *targetService) GetTarget(ctx context.Context, id string) (*domain.Target, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidTargetID
	}
	return s.repo.GetByID(ctx, id)
}

func (s *targetService) ListTargets(ctx context.Context, input ports.ListTargetsInput) ([]*domain.Target, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * targetsPageSize

	return s.repo.List(ctx, targetsPageSize, offset)
}
