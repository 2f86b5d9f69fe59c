// Package task binds serialized task records to registered model descriptors
// and drives a bound task through its run lifecycle:
//
//	bound → running → artifacts_generated → completed
//	            ↘            ↘
//	             failed ←─────┘
//
// A run always ends in a Notification (results or failure) and always
// removes the task's working directory before returning. Sending the
// notification is left to the caller.
package task
