/*
Copyright 2024 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package query

var instantQueries = []Definition{
	{
		Label: "Available CPUs",
		Name:  "cpus_available",
		Query: `sum by (cluster) (slurm_cpus_idle)`,
	},
	{
		Label: "Total CPUs",
		Name:  "cpus_total",
		Query: `sum by (cluster) (slurm_cpus_total)`,
	},
	{
		Label: "Available GPUs",
		Name:  "gpus_available",
		Query: `sum by (cluster) (slurm_gpus_idle)`,
	},
	{
		Label: "Total GPUs",
		Name:  "gpus_total",
		Query: `sum by (cluster) (slurm_gpus_total)`,
	},
	{
		Label: "Pending jobs",
		Name:  "jobs_pending",
		Query: `sum by (cluster, partition) (slurm_queue_pending)`,
	},
	{
		Label: "Running jobs",
		Name:  "jobs_running",
		Query: `sum by (cluster, partition) (slurm_queue_running)`,
	},
}

var rangeQueries = []Definition{
	{
		Label:       "Available CPUs over the last day",
		Name:        "cpus_available_history",
		Query:       `sum by (cluster) (slurm_cpus_idle)`,
		RangeOffset: 1,
		RangeUnit:   Day,
		RangeStep:   "15m",
	},
	{
		Label:       "Pending jobs over the last week",
		Name:        "jobs_pending_history",
		Query:       `sum by (cluster) (slurm_queue_pending)`,
		RangeOffset: 7,
		RangeUnit:   Day,
		RangeStep:   "1h",
	},
	{
		Label:       "Median job wait time over the last week",
		Name:        "job_wait_time_history",
		Query:       `histogram_quantile(0.5, sum by (cluster, le) (rate(slurm_job_wait_seconds_bucket[1h])))`,
		RangeOffset: 7,
		RangeUnit:   Day,
		RangeStep:   "1h",
	},
}

// Default returns the built-in catalogue.  The returned value owns fresh
// copies of the partitions, so callers may not alter the built-in one.
func Default() Catalogue {
	return Catalogue{
		Instant: append([]Definition(nil), instantQueries...),
		Range:   append([]Definition(nil), rangeQueries...),
	}
}
