// Package influxdb records automation outcomes in InfluxDB.
//
// It wraps influxdb-client-go v2 with connection management, batched
// non-blocking writes and health checks. OutcomeSink turns settled routine
// runs, task outcomes and trigger firings from the event relay into points:
//
//	routine_runs     tags routine_id,status   fields run_id,duration_ms,fulfilled,rejected,aborted,skipped
//	task_outcomes    tags task_id,outcome     fields run_id,duration_ms,attempts
//	trigger_firings  tags trigger_id          fields count
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	relay := eventbus.NewRelay(sub, topic, logger, influxdb.NewOutcomeSink(client))
//
// Batching follows batch_size and flush_interval from the config file.
// Asynchronous write failures go to the SetOnError callback.
package influxdb
