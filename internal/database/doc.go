// Package database provides the GORM-backed state store and governance
// audit store. It supports sqlite (default, pure-Go driver) and postgres
// backends behind the workflow.StateStore contract.
// This package is internal and should not be imported by external projects.
package database
