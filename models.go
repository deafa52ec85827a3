package main

// Snapshot is a decoded pixel-state publication: color -> pixel ids.
type Snapshot map[string][]int

// RepaintRequest is the payload of the "repaint" RPC.
type RepaintRequest struct {
	Type    int    `json:"type"`
	PixelID int    `json:"pixelId"`
	Color   string `json:"color"`
}

// InitialMessage is sent to a monitor observer right after it connects.
type InitialMessage struct {
	Type        string     `json:"type"`
	Data        PixelColor `json:"data"`
	ClientCount int        `json:"clientCount"`
}

type OutgoingMessage struct {
	Type        string     `json:"type"`
	Data        PixelColor `json:"data"`
	ClientCount int        `json:"clientCount"`
}

type IncomingMessage struct {
	Type string     `json:"type"`
	Data PixelColor `json:"data"`
}

type PixelColor struct {
	Index int    `json:"index"`
	Color string `json:"color"`
}
