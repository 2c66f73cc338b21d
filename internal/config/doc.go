// Package config provides configuration loading and validation for the capture service.
// Files are YAML; fields a file leaves out keep the values from Default, and each
// section validates itself before the service starts.
package config
