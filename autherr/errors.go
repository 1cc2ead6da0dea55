// Copyright 2023 Versity Software
// This file is licensed under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package autherr

import (
	"fmt"
	"net/http"
)

// APIError is the error surface returned to HTTP callers. Descriptions are
// generic by design; internal failure detail stays in the logs.
type APIError struct {
	Code           string `json:"code"`
	Description    string `json:"description"`
	HTTPStatusCode int    `json:"-"`
}

// Error returns the error description
func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// ErrorCode identifies a well-known API error
type ErrorCode int

const (
	ErrMissingCredential ErrorCode = iota
	ErrInvalidToken
	ErrExpiredToken
	ErrAccessBlocked
	ErrStepUpRequired
	ErrSessionInvalid
	ErrInternalError
)

var errorTable = map[ErrorCode]APIError{
	ErrMissingCredential: {
		Code:           "MissingCredential",
		Description:    "No bearer credential was provided with the request",
		HTTPStatusCode: http.StatusUnauthorized,
	},
	ErrInvalidToken: {
		Code:           "InvalidToken",
		Description:    "The provided credential is invalid",
		HTTPStatusCode: http.StatusUnauthorized,
	},
	ErrExpiredToken: {
		Code:           "ExpiredToken",
		Description:    "The provided credential has expired",
		HTTPStatusCode: http.StatusUnauthorized,
	},
	ErrAccessBlocked: {
		Code:           "AccessBlocked",
		Description:    "Access denied by security policy",
		HTTPStatusCode: http.StatusForbidden,
	},
	ErrStepUpRequired: {
		Code:           "StepUpRequired",
		Description:    "Additional verification is required before access is granted",
		HTTPStatusCode: http.StatusUnauthorized,
	},
	ErrSessionInvalid: {
		Code:           "SessionInvalid",
		Description:    "The session could not be validated",
		HTTPStatusCode: http.StatusUnauthorized,
	},
	ErrInternalError: {
		Code:           "InternalError",
		Description:    "An internal error occurred while processing the request",
		HTTPStatusCode: http.StatusInternalServerError,
	},
}

// GetAPIError returns the APIError for a well-known code
func GetAPIError(code ErrorCode) APIError {
	if err, ok := errorTable[code]; ok {
		return err
	}
	return errorTable[ErrInternalError]
}
