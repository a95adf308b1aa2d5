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

package http

var (
	Failed                        = failed(500, "Request failed")
	RequestParameterParsingFailed = failed(5001, "Request parameter parsing failed")

	// Unauthorized 401
	Unauthorized         = failed(4401, "Unauthorized")
	AuthenticationFailed = failed(4402, "Authentication failed")
	InvalidToken         = failed(4405, "Invalid token")
	TokenBeEmpty         = failed(4406, "Token cannot be empty")
	TokenExpired         = failed(4407, "Token is expired")
	LaunchDataInvalid    = failed(4408, "Launch data validation failed")
	LaunchDataExpired    = failed(4409, "Launch data is too old, reopen the application")

	// BadRequest 400
	BadRequest = failed(4000, "Bad request")
	NotFound   = failed(4004, "Not found")

	// Forbidden 403
	Forbidden     = failed(4030, "Forbidden")
	RegionBlocked = failed(4031, "Access from this region is not available")
	PhoneBlocked  = failed(4032, "Phone numbers from this region are not supported")

	// TooManyRequests 429
	TooManyRequests = failed(4290, "Too many requests, try again later")

	// Conflict 409, verification and trial lifecycle
	VerificationStepInvalid = failed(4090, "Verification step out of order")
	VerificationNotFound    = failed(4091, "Verification not found, start over")
	ManualReviewRequired    = failed(4092, "Manual review required, contact support")
	TrialAlreadyUsed        = failed(4093, "Trial access has already been used")
	TrialNotFound           = failed(4094, "No active trial found")
	TrialAlreadyActive      = failed(4095, "Trial is already running")

	InternalError      = failed(5000, "Internal error, please contact the administrator")
	InviteCreateFailed = failed(5002, "Could not create the invite link, try again")
)

var (
	Success = success(200, "Request Success")
)

// failed constructor
func failed(code int, msg string) *Response {
	return &Response{
		Code:   code,
		Msg:    msg,
		Detail: nil,
	}
}

// success constructor
func success(code int, msg string) *Response {
	return &Response{
		Code:   code,
		Msg:    msg,
		Detail: nil,
	}
}
