// Package testing runs declarative system-test scenarios against a lab environment.
//
// A scenario is a YAML document naming a category (smoke, system, stacklight,
// destructive), the component it exercises and an ordered list of steps. Each step
// invokes a registered action such as ssh.exec, kube.wait_pod_phase, ccp.run or
// stacklight.log_count with templated arguments, and checks the outcome:
//
//	name: ccp-deploy-keystone
//	category: system
//	component: ccp
//	snapshot: ccp-installed
//	steps:
//	  - id: deploy
//	    action: ccp.run
//	    args:
//	      args: deploy -c keystone
//	    expected:
//	      success: true
//	  - id: wait
//	    action: kube.wait_pod_phase
//	    args:
//	      selector: app=keystone
//	      timeout: 10m
//	    expected:
//	      success: true
//	    store: keystone
//	  - id: check
//	    action: ssh.exec
//	    args:
//	      node: "{{ .env.ccp_node }}"
//	      command: kubectl -n {{ .env.namespace }} get pod {{ index .keystone.pods 0 }}
//	    expected:
//	      success: true
//	      contains: [Running]
//	      values:
//	        exit_code: 0
//
// Arguments and expectations are Go templates (with sprig functions) over the
// built-in variables scenario, run_id, env and nodes plus the responses stored by
// earlier steps. Expected values address the response by keypath.
//
// Steps may retry with an optional backoff multiplier, or poll until their
// expectations hold with wait_for_state. Cleanup steps always run, even after the
// scenario deadline. Scenarios run sequentially or on a worker pool; results go
// to a console, quiet or JSON reporter, an optional JSON report file, and a
// Prometheus textfile with step and scenario durations.
package testing
