// Package models contains shared data models used across the scan engine.
package models
