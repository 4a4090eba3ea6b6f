package main

//go:generate swag init -g cmd/engine/main.go -o docs

// @title           Propdesk Engine API
// @version         0.1.0
// @description     Signal intake, risk-gated execution and trade monitoring.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
