package service

import (
	"context"
	"fmt"
	"strings"

	"coop_door/internal/controller"
	"coop_door/internal/models"
)

type DoorService struct {
	ctrl DoorController
}

func NewDoorService(ctrl DoorController) *DoorService {
	return &DoorService{ctrl: ctrl}
}

func (s *DoorService) Recover(ctx context.Context) (models.DoorStatus, error) {
	return s.ctrl.Recover(ctx)
}

func (s *DoorService) ClearFaults(ctx context.Context) (models.DoorStatus, error) {
	return s.ctrl.ClearFaults(ctx)
}

// SetOverride accepts a case-insensitive target name.
func (s *DoorService) SetOverride(ctx context.Context, target string) (models.DoorStatus, error) {
	t, err := parseTarget(target)
	if err != nil {
		return models.DoorStatus{}, err
	}
	return s.ctrl.SetOverride(ctx, t)
}

func (s *DoorService) ClearOverride(ctx context.Context) (models.DoorStatus, error) {
	return s.ctrl.ClearOverride(ctx)
}

func parseTarget(s string) (models.TargetState, error) {
	t := models.TargetState(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", controller.ErrInvalidTarget, s)
	}
	return t, nil
}
