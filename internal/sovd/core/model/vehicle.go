package model

import "time"

// VehicleConnectionStatus is the last known reachability of a vehicle.
type VehicleConnectionStatus string

const (
	VehicleConnected    VehicleConnectionStatus = "connected"
	VehicleDisconnected VehicleConnectionStatus = "disconnected"
)

// Vehicle is a target of diagnostic commands.
type Vehicle struct {
	ID               string                  `json:"vehicle_id"`
	VIN              string                  `json:"vin"`
	Name             string                  `json:"name"`
	ConnectionStatus VehicleConnectionStatus `json:"connection_status"`
	CreatedAt        time.Time               `json:"created_at"`
}

// User is an operator that submits commands.
type User struct {
	ID       string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}
