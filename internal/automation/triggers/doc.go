// Package triggers builds automation.Trigger values from project
// definitions and supplies the stimulus source for each variant.
//
// Variants:
//
//	cron          weekday list + milliseconds since midnight
//	cronExpr      standard five-field cron expression
//	tcp, udp      inbound message matching a pattern
//	api           fired only through the HTTP hook route
//	startup       fires once when the engine starts
//	routineEvent  another routine reached a terminal state
//	mqtt          message on a broker topic
//
// Time-based variants share one robfig/cron scheduler per trigger, so a
// disarmed cron trigger keeps its schedule and fires again at the next
// occurrence after being re-armed.
package triggers
