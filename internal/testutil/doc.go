// Package testutil provides test fixtures, a controllable clock, and small
// HTTP helpers shared by the package tests.
package testutil
