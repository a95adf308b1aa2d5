// Copyright 2025 Gatehouse Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package statemachine

// FunnelStatus is the verification funnel state of one applicant.
// The value is stored verbatim in the pending verification row.
type FunnelStatus string

const (
	FunnelUnverified     FunnelStatus = "unverified"
	FunnelIPChecked      FunnelStatus = "ip_checked"
	FunnelStep1Submitted FunnelStatus = "step1_submitted"
	FunnelPhoneVerified  FunnelStatus = "phone_verified"
	FunnelTrialGranted   FunnelStatus = "trial_granted"
	FunnelBlockedRegion  FunnelStatus = "blocked_region"
	FunnelBlockedPhone   FunnelStatus = "blocked_phone"
)

// IsTerminal reports whether the funnel is finished for this applicant,
// either by granting the trial or by blocking them.
func (fs FunnelStatus) IsTerminal() bool {
	return fs == FunnelTrialGranted || fs.IsBlocked()
}

// IsBlocked reports whether the applicant was rejected by a screening step.
func (fs FunnelStatus) IsBlocked() bool {
	return fs == FunnelBlockedRegion || fs == FunnelBlockedPhone
}

// Rank orders the forward states so callers can tell how far an applicant
// progressed. Blocked states have no position on the forward path and
// rank as -1.
func (fs FunnelStatus) Rank() int {
	switch fs {
	case FunnelUnverified:
		return 0
	case FunnelIPChecked:
		return 1
	case FunnelStep1Submitted:
		return 2
	case FunnelPhoneVerified:
		return 3
	case FunnelTrialGranted:
		return 4
	default:
		return -1
	}
}

// Reached reports whether the applicant has already completed the step
// that produces the given status. Used to answer repeated submissions
// of an earlier step without re-running it.
func (fs FunnelStatus) Reached(target FunnelStatus) bool {
	r, t := fs.Rank(), target.Rank()
	if r < 0 || t < 0 {
		return false
	}
	return r >= t
}

// NewFunnelStateMachine builds the verification funnel state machine.
// Steps must be passed in order; the screening steps can divert into a
// blocked state instead of advancing.
func NewFunnelStateMachine() *StateMachine[FunnelStatus] {
	sm := NewWithState(FunnelUnverified)

	sm.Allow(FunnelUnverified, FunnelIPChecked, FunnelBlockedRegion).
		Allow(FunnelIPChecked, FunnelStep1Submitted, FunnelBlockedRegion).
		Allow(FunnelStep1Submitted, FunnelPhoneVerified, FunnelBlockedPhone).
		Allow(FunnelPhoneVerified, FunnelTrialGranted)

	return sm
}

// NewFunnelStateMachineAt builds the funnel machine positioned at a
// status loaded from storage.
func NewFunnelStateMachineAt(current FunnelStatus) *StateMachine[FunnelStatus] {
	sm := NewFunnelStateMachine()
	sm.SetCurrent(current)
	return sm
}

// NewFunnelStateMachineWithHooks builds the funnel machine with side
// effects attached to the terminal states.
func NewFunnelStateMachineWithHooks(
	onBlocked func(status FunnelStatus) error,
	onGranted func() error,
) *StateMachine[FunnelStatus] {
	sm := NewFunnelStateMachine()

	if onBlocked != nil {
		sm.OnEnter(FunnelBlockedRegion, func(state FunnelStatus) error {
			return onBlocked(state)
		})
		sm.OnEnter(FunnelBlockedPhone, func(state FunnelStatus) error {
			return onBlocked(state)
		})
	}

	if onGranted != nil {
		sm.OnEnter(FunnelTrialGranted, func(state FunnelStatus) error {
			return onGranted()
		})
	}

	return sm
}
