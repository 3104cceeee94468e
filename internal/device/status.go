package device

import (
	"strings"

	"go.uber.org/zap"
)

// DeviceInfo exposes the read-only capability metadata for one appliance
// model: locale enum tables, error reference tables and the control
// groups the firmware accepts.
type DeviceInfo interface {
	// EnumLabel maps a raw enum code for a field to its label.
	EnumLabel(field, code string) (string, bool)
	// EnumCode is the reverse lookup, label to code.
	EnumCode(field, label string) (string, bool)
	// ReferenceTitle resolves a reference code for a field to the title
	// attribute of its record.
	ReferenceTitle(field, code string) (string, bool)
	// SupportsCommand reports whether the firmware accepts a control
	// group/command pair. An empty command matches the bare group.
	SupportsCommand(group, command string) bool
}

// memo caches one resolved field per snapshot.
type memo struct {
	value string
	valid bool
}

// Status is the derived view over one raw payload. A fresh Status is
// built on every successful poll; derived fields are resolved at most
// once per instance unless invalidated by UpdateStatus. A Status built
// without a payload reads as powered off with no error.
type Status struct {
	info   DeviceInfo
	sink   FeatureSink
	logger *zap.Logger

	data     Payload
	runState memo
	errState memo
}

func newStatus(info DeviceInfo, sink FeatureSink, logger *zap.Logger, data Payload) *Status {
	if data == nil {
		data = Payload{}
	}
	return &Status{info: info, sink: sink, logger: logger, data: data}
}

// resolveRunState classifies the raw run-state field. An absent or empty
// field reads as powered off.
func (s *Status) resolveRunState() string {
	if !s.runState.valid {
		state := s.lookupEnum(runStateKeys)
		if state == "" {
			state = StatePowerOff
		}
		s.runState = memo{value: state, valid: true}
	}
	return s.runState.value
}

// resolveError resolves the raw error reference field. An absent or
// empty field reads as the powered-off error sentinel. Unlike the run
// state, the result is kept for the life of the snapshot: UpdateStatus
// never invalidates it.
func (s *Status) resolveError() string {
	if !s.errState.valid {
		errState := s.lookupReference(errorKeys)
		if errState == "" {
			errState = ErrorOff
		}
		s.errState = memo{value: errState, valid: true}
	}
	return s.errState.value
}

// lookupEnum resolves a raw field through the model enum table, passing
// the raw value through untouched when it carries no known code.
func (s *Status) lookupEnum(keys []string) string {
	raw := fieldString(s.data.lookup(keys))
	if raw == "" {
		return ""
	}
	if label, ok := s.info.EnumLabel(keys[0], raw); ok {
		return label
	}
	return raw
}

// lookupReference resolves a raw reference code against the model
// reference table, returning the record's title. Codes with no record
// pass through as opaque vendor strings.
func (s *Status) lookupReference(keys []string) string {
	raw := fieldString(s.data.lookup(keys))
	if raw == "" {
		return ""
	}
	if title, ok := s.info.ReferenceTitle(keys[0], raw); ok {
		return title
	}
	return raw
}

// IsOn reports whether the appliance is powered on.
func (s *Status) IsOn() bool {
	return !strings.Contains(s.resolveRunState(), StatePowerOff)
}

// IsRunCompleted reports whether the current cycle has finished. A
// powered-off appliance is trivially not running.
func (s *Status) IsRunCompleted() bool {
	runState := s.resolveRunState()
	for _, state := range stateTerminal {
		if strings.Contains(runState, state) {
			return true
		}
	}
	return strings.Contains(runState, StatePowerOff)
}

// IsError reports whether an active error is present. Power precedes
// error evaluation: a powered-off appliance never reports an error.
func (s *Status) IsError() bool {
	if !s.IsOn() {
		return false
	}
	errState := s.resolveError()
	if errState == ErrorOff {
		return false
	}
	for _, v := range errorNoError {
		if errState == v {
			return false
		}
	}
	return true
}

// RunState returns the normalized run state, StateNone when powered off.
// The value is routed through the feature side-channel before returning.
func (s *Status) RunState() string {
	runState := s.resolveRunState()
	if strings.Contains(runState, StatePowerOff) {
		runState = StateNone
	}
	return s.updateFeature(FeatureRunState, runState)
}

// ErrorMsg returns the active error message, StateNone when no error is
// present. The value is routed through the feature side-channel before
// returning.
func (s *Status) ErrorMsg() string {
	if !s.IsError() {
		return s.updateFeature(FeatureErrorMsg, StateNone)
	}
	return s.updateFeature(FeatureErrorMsg, s.resolveError())
}

// UpdateStatus patches one raw field and reports whether it changed. A
// change invalidates the run-state memo only; a resolved error is kept
// untouched since a local field patch cannot raise or clear an error
// condition.
func (s *Status) UpdateStatus(key string, value any) bool {
	if !s.data.Set(key, value) {
		return false
	}
	s.runState = memo{}
	s.logger.Debug("Raw status field patched",
		zap.String("key", key),
		zap.Any("value", value))
	return true
}

// UpdateFeatures forces both features through the side-channel so
// external readers see fresh values before anything touches the
// properties.
func (s *Status) UpdateFeatures() {
	_ = s.RunState()
	_ = s.ErrorMsg()
}

func (s *Status) updateFeature(name, value string) string {
	if s.sink != nil {
		s.sink.UpdateFeature(name, value)
	}
	return value
}

// StatusView is a point-in-time value copy of the derived fields. A
// Status belongs to whatever goroutine owns the controller; hand a view
// across goroutine boundaries instead of the snapshot itself.
type StatusView struct {
	IsOn           bool
	IsRunCompleted bool
	IsError        bool
	RunState       string
	ErrorMsg       string
}

// View resolves every derived field and returns them as plain values.
func (s *Status) View() StatusView {
	return StatusView{
		IsOn:           s.IsOn(),
		IsRunCompleted: s.IsRunCompleted(),
		IsError:        s.IsError(),
		RunState:       s.RunState(),
		ErrorMsg:       s.ErrorMsg(),
	}
}
