// Package device defines the transport contracts of the distance link.
//
// The BLE stack is a collaborator behind these interfaces:
//   - Central scans for advertisements and dials peripherals
//   - Session is the single live connection handle a central owns
//   - Characteristic reads, writes and subscribes on the remote peer
//   - Peripheral serves the GATT characteristic, advertises and notifies
//
// Implementations live in the go-ble subpackage; tests use in-memory fakes.
package device
