// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package viewerkit implements a two-sided file synchronization engine
// that keeps an in-editor document buffer and a file on disk consistent
// under concurrent mutation from both sides.
//
// The primary elements of interest are:
//
//  - HostEngine and ViewEngine, which each own and wire together every
//    subsystem for a single host or view process.
//
//  - bridge.Bridge, the ordered request/response transport connecting a
//    host process to a view process.
//
//  - session.EditSession, the view-side state machine that reconciles
//    user edits with host-reported file changes.
package viewerkit

import (
	"encoding/json"
	"fmt"

	"github.com/dabochen/viewerkit/bridge"
)

// decodeMessagePayload unmarshals one inbound Message's payload into
// v, wrapping a decode failure with the Kind that produced it.
func decodeMessagePayload(msg bridge.Message, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("viewerkit: decode %s payload: %w", msg.Kind, err)
	}
	return nil
}
