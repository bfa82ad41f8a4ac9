/*
Copyright 2024 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package aggregator

import (
	"encoding/json"

	"github.com/clustermon/dashboard/pkg/client"
	"github.com/clustermon/dashboard/pkg/query"
)

// Entry is the outcome of one catalogue query.  Exactly one of Result and
// Err is set, so an empty-but-successful result is never mistaken for a
// failure.
type Entry struct {
	Definition query.Definition
	Mode       query.Mode
	Result     *client.QueryResult
	Err        error
}

// Failed reports whether the query behind this entry failed.
func (e Entry) Failed() bool {
	return e.Err != nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	out := struct {
		Definition query.Definition    `json:"definition"`
		Mode       query.Mode          `json:"mode"`
		Failed     bool                `json:"failed"`
		Result     *client.QueryResult `json:"result,omitempty"`
		Error      string              `json:"error,omitempty"`
	}{
		Definition: e.Definition,
		Mode:       e.Mode,
		Failed:     e.Failed(),
		Result:     e.Result,
	}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return json.Marshal(out)
}
