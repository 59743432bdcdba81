// instrument.go - Prometheus instrumentation.
// Copyright (C) 2021  The Awala PoWeb Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package poweb

import "github.com/prometheus/client_golang/prometheus"

var (
	collectionSessions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "poweb",
		Name:      "collection_sessions_total",
		Help:      "Number of parcel collection sessions established.",
	})
	collectionReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "poweb",
		Name:      "collection_reconnects_total",
		Help:      "Number of keep-alive reconnections.",
	})
	parcelsCollected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "poweb",
		Name:      "parcels_collected_total",
		Help:      "Number of parcels handed to the consumer.",
	})
	acksSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "poweb",
		Name:      "acks_sent_total",
		Help:      "Number of parcel collection acknowledgements sent.",
	})
	parcelsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "poweb",
		Name:      "parcels_delivered_total",
		Help:      "Number of parcels delivered to the gateway.",
	})
	nodeRegistrations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "poweb",
		Name:      "node_registrations_total",
		Help:      "Number of nodes registered.",
	})
)

// Metrics returns the collectors maintained by this package, for callers
// that expose Prometheus metrics.  The package does not register them with
// the default registerer.
func Metrics() []prometheus.Collector {
	return []prometheus.Collector{
		collectionSessions,
		collectionReconnects,
		parcelsCollected,
		acksSent,
		parcelsDelivered,
		nodeRegistrations,
	}
}
