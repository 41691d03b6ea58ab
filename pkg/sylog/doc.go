// Package sylog implements a basic leveled logger shared by all e4s-cl
// packages, modeled on Apptainer's internal message logger.
package sylog
