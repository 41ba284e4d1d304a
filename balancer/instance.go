// Copyright 2023-2025 Buf Technologies, Inc.
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

package balancer

import (
	"math"
	"net"
	"strconv"
)

// Well-known instance metadata keys.
const (
	// MetadataWeight holds the instance's relative weight as a decimal
	// number. Missing or unparsable weights count as 1.
	MetadataWeight = "weight"
	// MetadataCluster holds the name of the cluster the instance runs in.
	MetadataCluster = "cluster"
	// MetadataSecure, when "true", makes requests to the instance use https.
	MetadataSecure = "secure"
)

const defaultWeight = 1.0

// Instance is one registered endpoint of a service. Instances are
// point-in-time snapshots and are treated as read-only.
type Instance struct {
	ID       string
	Host     string
	Port     int
	Healthy  bool
	Metadata map[string]string
}

// Weight returns the instance's weight metadata, or 1 when it is missing,
// unparsable, or not finite.
func (i Instance) Weight() float64 {
	raw, ok := i.Metadata[MetadataWeight]
	if !ok || raw == "" {
		return defaultWeight
	}
	weight, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return defaultWeight
	}
	return weight
}

// Cluster returns the instance's cluster metadata, or "".
func (i Instance) Cluster() string {
	return i.Metadata[MetadataCluster]
}

// HostPort returns the instance address in "host:port" form.
func (i Instance) HostPort() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// Origin returns the scheme and address requests to this instance use.
func (i Instance) Origin() string {
	scheme := "http"
	if i.Metadata[MetadataSecure] == "true" {
		scheme = "https"
	}
	return scheme + "://" + i.HostPort()
}
