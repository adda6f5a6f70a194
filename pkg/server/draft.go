package server

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/NicolasHaas/partyvc/pkg/model"
	"github.com/NicolasHaas/partyvc/pkg/recruit"
)

// MaxRecruits is the largest number of members a creator can ask for.
const MaxRecruits = model.MaxCapacity - 1

var (
	ErrDraftOrder  = errors.New("draft: previous step missing")
	ErrDraftSize   = errors.New("draft: recruit count must be 0 (unlimited) to 98")
	ErrDraftFilled = errors.New("draft: step already completed")
)

// Step is a stage of session creation.
type Step int

const (
	StepPurpose Step = iota
	StepRole
	StepSize
	StepTitle
	StepReady
)

// Draft accumulates a session request one step at a time:
// purpose, then the creator's role, then the recruit count, then an
// optional title. Each step requires the one before it.
type Draft struct {
	creatorID   string
	creatorName string
	step        Step

	purpose  string
	role     model.Role
	recruits int
	title    string
}

// NewDraft starts a draft for a creator.
func NewDraft(creatorID, creatorName string) *Draft {
	return &Draft{creatorID: creatorID, creatorName: creatorName}
}

// Next returns the step waiting for input.
func (d *Draft) Next() Step { return d.step }

func (d *Draft) expect(step Step) error {
	if d.step < step {
		return ErrDraftOrder
	}
	if d.step > step {
		return ErrDraftFilled
	}
	return nil
}

// SetPurpose records the game purpose.
func (d *Draft) SetPurpose(purpose string) error {
	if err := d.expect(StepPurpose); err != nil {
		return err
	}
	p, err := model.NormalizePurpose(purpose)
	if err != nil {
		return err
	}
	d.purpose = p
	d.step = StepRole
	return nil
}

// SetRole records the creator's lane.
func (d *Draft) SetRole(role string) error {
	if err := d.expect(StepRole); err != nil {
		return err
	}
	r, err := model.ParseRole(role)
	if err != nil {
		return err
	}
	if !r.Valid() {
		return model.ErrInvalidRole
	}
	d.role = r
	d.step = StepSize
	return nil
}

// SetRecruits records how many members the creator is looking for.
// Zero means no limit.
func (d *Draft) SetRecruits(count string) error {
	if err := d.expect(StepSize); err != nil {
		return err
	}
	n := 0
	if s := strings.TrimSpace(count); s != "" {
		var err error
		if n, err = strconv.Atoi(s); err != nil {
			return ErrDraftSize
		}
	}
	if n < 0 || n > MaxRecruits {
		return ErrDraftSize
	}
	d.recruits = n
	d.step = StepTitle
	return nil
}

// SetTitle records the announcement title. An empty title is allowed.
func (d *Draft) SetTitle(title string) error {
	if err := d.expect(StepTitle); err != nil {
		return err
	}
	t := strings.TrimSpace(title)
	if utf8.RuneCountInString(t) > model.MaxTitleLength {
		return model.ErrTitleTooLong
	}
	d.title = t
	d.step = StepReady
	return nil
}

// Request returns the finished create request. The capacity counts the
// creator, so asking for N recruits yields capacity N+1.
func (d *Draft) Request() (recruit.CreateRequest, error) {
	if d.step != StepReady {
		return recruit.CreateRequest{}, ErrDraftOrder
	}
	capacity := 0
	if d.recruits > 0 {
		capacity = d.recruits + 1
	}
	return recruit.CreateRequest{
		CreatorID:   d.creatorID,
		CreatorName: d.creatorName,
		Purpose:     d.purpose,
		Title:       d.title,
		Role:        d.role,
		Capacity:    capacity,
	}, nil
}

// Recruits returns the requested recruit count.
func (d *Draft) Recruits() int { return d.recruits }
