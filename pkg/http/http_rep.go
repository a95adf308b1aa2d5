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

import (
	"github.com/gofiber/fiber/v2"
)

type Response struct {
	Code   int    `json:"code"`
	Detail any    `json:"detail,omitempty"`
	Msg    string `json:"msg"`
}

// WithRepJSON responds with the success code and the given detail payload
func WithRepJSON(c *fiber.Ctx, detail any) error {
	return c.JSON(Response{
		Code:   Success.Code,
		Detail: detail,
		Msg:    Success.Msg,
	})
}

// WithRepMsg responds with a custom code and msg
func WithRepMsg(c *fiber.Ctx, code int, msg string) error {
	return c.JSON(Response{
		Code: code,
		Msg:  msg,
	})
}

// WithRepDetail responds with a custom code, msg and detail
func WithRepDetail(c *fiber.Ctx, code int, msg string, detail any) error {
	return c.JSON(Response{
		Code:   code,
		Detail: detail,
		Msg:    msg,
	})
}

// WithRepNotDetail responds with the success envelope without a detail field
func WithRepNotDetail(c *fiber.Ctx) error {
	return c.JSON(Response{
		Code: Success.Code,
		Msg:  Success.Msg,
	})
}
