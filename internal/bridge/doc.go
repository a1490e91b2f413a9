// Package bridge republishes newly stored device events to a local MQTT
// broker.
//
// The bridge is publish-only and optional (config-gated, off by
// default): the core ingestion path never depends on it, and a broker
// outage costs downstream observers their live feed, nothing more. Each
// new record goes to tuyatrace/event/<device_id>; the bridge's own
// availability is signalled on tuyatrace/system/status with a Last Will
// for crash detection.
package bridge
