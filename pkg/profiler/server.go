/*
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

package profiler

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
)

// Snapshot holds the last successfully computed NodeProfile list,
// swapped atomically so GET /nodes never blocks behind a Reconcile
// pass and always serves either the current or the immediately prior
// generation, never a half-written one.
type Snapshot struct {
	value atomic.Pointer[[]v1alpha1.NodeProfile]
}

func NewSnapshot() *Snapshot {
	s := &Snapshot{}
	empty := []v1alpha1.NodeProfile{}
	s.value.Store(&empty)
	return s
}

func (s *Snapshot) Set(profiles []v1alpha1.NodeProfile) {
	s.value.Store(&profiles)
}

func (s *Snapshot) Get() []v1alpha1.NodeProfile {
	return *s.value.Load()
}

// nodeProfileResponse mirrors the wire shape the Task Packer's HTTP
// fallback path decodes.
type nodeProfileResponse struct {
	Items []v1alpha1.NodeProfile `json:"items"`
}

// Handler serves GET /nodes from the Snapshot, independent of whatever
// Reconcile pass is or isn't currently in flight.
func Handler(snapshot *Snapshot) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(nodeProfileResponse{Items: snapshot.Get()})
	})
}
