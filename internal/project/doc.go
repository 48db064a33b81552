// Package project loads an automation project file and builds the live
// routine and trigger graph from it.
//
// A project is YAML. Durations are integers in milliseconds, matching the
// units used throughout job and condition params:
//
//	name: Main Hall
//	triggers:
//	  - id: doors
//	    type: cron
//	    armed: true
//	    reArmOnTrigger: true
//	    params: {day: [mon, tue, wed, thu, fri], dayTime: 68400000}
//	routines:
//	  - id: opening
//	    triggers: [doors]
//	    runInSync: true
//	    tasks:
//	      - id: wake-pc
//	        retries: 5
//	        waitBeforeRetry: 2000
//	        job: {id: wol-pc, type: wol, params: {mac: "00:11:22:33:44:55"}}
//	        condition: {id: pc-up, type: ping, timeoutValue: 1000, params: {ipAddress: 10.0.0.20}}
//
// Load parses and validates; Build turns a validated project into an
// automation.Registry.
package project
