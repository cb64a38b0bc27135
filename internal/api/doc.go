// Package api exposes the REST surface of the routing hub: synchronous route
// execution, asynchronous task submission and inspection, agent discovery,
// conversation replay, token issuance, and health probes.
package api
