package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vanguarddb/vanguard/pkg/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the cluster's current Raft leadership and term",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("master", "127.0.0.1:7650", "address of any master in the cluster")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	masterAddr, _ := cmd.Flags().GetString("master")

	c, err := client.NewClient(masterAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to master: %v", err)
	}
	defer c.Close()

	resp, err := c.GetClusterStatus()
	if err != nil {
		return fmt.Errorf("failed to get cluster status: %v", err)
	}

	fmt.Printf("is_leader:   %t\n", resp.IsLeader)
	fmt.Printf("leader_addr: %s\n", resp.LeaderAddr)
	fmt.Printf("term:        %d\n", resp.CurrentTerm)
	return nil
}

var setupReplicationCmd = &cobra.Command{
	Use:   "setup-replication --producer-id ID --producer-masters ADDR[,ADDR...] --tables PRODUCER_TABLE_ID=CONSUMER_TABLE_ID[,...]",
	Short: "Set up xCluster replication from a producer cluster's tables into this cluster",
	Long: `Discovers each named producer table's schema and tablet ids directly
from the producer cluster, opens a CDC stream per table there, then
registers the replication relationship on this (consumer) cluster.`,
	RunE: runSetupReplication,
}

func init() {
	setupReplicationCmd.Flags().String("master", "127.0.0.1:7650", "address of any master in this (consumer) cluster")
	setupReplicationCmd.Flags().String("producer-id", "", "identifier for the producer cluster (required)")
	setupReplicationCmd.Flags().StringSlice("producer-masters", nil, "comma-separated producer master addresses (required)")
	setupReplicationCmd.Flags().StringToString("tables", nil, "producer_table_id=consumer_table_id pairs (required)")
	_ = setupReplicationCmd.MarkFlagRequired("producer-id")
	_ = setupReplicationCmd.MarkFlagRequired("producer-masters")
	_ = setupReplicationCmd.MarkFlagRequired("tables")
	rootCmd.AddCommand(setupReplicationCmd)
}

func runSetupReplication(cmd *cobra.Command, args []string) error {
	masterAddr, _ := cmd.Flags().GetString("master")
	producerID, _ := cmd.Flags().GetString("producer-id")
	producerMasters, _ := cmd.Flags().GetStringSlice("producer-masters")
	tables, _ := cmd.Flags().GetStringToString("tables")

	c, err := client.NewClient(masterAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to master: %v", err)
	}
	defer c.Close()

	rep, err := c.SetupUniverseReplicationFromProducer(producerID, producerMasters, tables)
	if err != nil {
		return fmt.Errorf("failed to set up replication: %v", err)
	}
	fmt.Printf("replication %q is now %s\n", rep.ProducerID, rep.State)
	return nil
}
