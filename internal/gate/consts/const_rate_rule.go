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

package consts

// Rate limit rule names. The router references rules by these names and
// the limiter configuration defines their windows.
const (
	RateRuleIP           = "ip"
	RateRuleIPStrict     = "ip_strict"
	RateRuleIdentity     = "identity"
	RateRuleFallback     = "fallback"
	RateRuleHandoff      = "handoff"
	RateRuleFunnelAction = "funnel_action"
)
