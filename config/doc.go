// Package config loads agent configuration from YAML.
//
// One file may describe several agents under "agents"; a process picks its
// agent by identifier. Mapping profiles live under "mappings" and are shared
// by every agent in the file.
//
// # Loading
//
//	loader := config.NewLoader()
//	file, err := loader.LoadFile(config.ResolvePath("SIFAgent"))
//	if err != nil { ... }
//	agent, err := file.Agent("StudentAgent")
//
// References of the form ${VAR} or ${VAR:-default} are replaced with
// environment values before parsing. After parsing, defaults are filled in and
// ZONEAGENT_* variables override NATS credentials, the metrics port and the
// debug level.
//
// # Frequencies
//
// Event and sync frequencies resolve entity value first, then the agent
// default. A zero or unset frequency disables the work; the entity is still
// scheduled and its tick does nothing.
//
//	agents:
//	  StudentAgent:
//	    event_frequency: 5m
//	    publishers:
//	      - id: StudentPublisher
//	        factory: file
//	        object_type: StudentPersonal
//	        event_frequency: 0   # disabled
package config
