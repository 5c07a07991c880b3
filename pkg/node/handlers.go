package node

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/ovsdb"
)

// EndpointsResponse is the body of /endpoints.
type EndpointsResponse struct {
	Endpoint   string   `json:"endpoint"`
	Addresses  []string `json:"addresses"`
	Northbound string   `json:"northbound"`
	Southbound string   `json:"southbound"`
}

// Healthz returns 200 OK to indicate the Node is alive.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Info writes the process ID, current time, and the tracker snapshot.
func (n *Node) Info(w http.ResponseWriter, _ *http.Request) {
	type resp struct {
		PID    int          `json:"pid"`
		Now    time.Time    `json:"now"`
		Status ovsdb.Status `json:"status"`
	}
	writeJSON(w, http.StatusOK, resp{PID: os.Getpid(), Now: time.Now(), Status: n.Status()})
}

// Endpoints writes the connection strings of the cluster once it is
// available, and 503 before that.
func (n *Node) Endpoints(w http.ResponseWriter, _ *http.Request) {
	st := n.Status()
	if st.State != ovsdb.Available {
		http.Error(w, "cluster is "+st.State.String(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, EndpointsResponse{
		Endpoint:   st.Endpoint,
		Addresses:  st.RemoteAddresses,
		Northbound: strings.Join(st.Northbound, ","),
		Southbound: strings.Join(st.Southbound, ","),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
