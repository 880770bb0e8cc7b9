// Package underlay keeps the SSH credentials of the lab nodes and runs commands on them.
//
// A Manager is built from the credentials stored in the environment configuration. Nodes
// are addressed by node name or host address. Connections are opened lazily, cached per
// host and shared between goroutines; concurrent first use of the same host results in a
// single dial.
//
//	mgr := underlay.NewManager(envConfig.Underlay())
//	defer mgr.Close()
//
//	res, err := mgr.CheckCall(ctx, "master", "kubectl get nodes -o json")
//	if err != nil {
//	    return err
//	}
//	var nodes map[string]any
//	err = res.StdoutJSON(&nodes)
package underlay
