/*
Package security provides cryptographic services for a vanguard cluster.

This package implements two core security capabilities: a Certificate Authority
(CA) for mutual TLS (mTLS) between masters, tablet servers and producer-cluster
replication endpoints, and a universe key manager for at-rest encryption of
table data. Together these provide encrypted cluster communication and
encryption-at-rest for tablet data.

# Architecture

	┌─────────────────────────────────────────────────────────┐
	│                  Security Architecture                  │
	└─────┬─────────────────────────────────┬─────────────────┘
	      │                                 │
	      ▼                                 ▼
	┌─────────────┐                 ┌────────────────┐
	│      CA      │                │  Universe Keys  │
	│    (Root)    │                │ (data at rest)  │
	└─────┬────────┘                └────────┬────────┘
	      │                                  │
	      ▼                                  ▼
	  RSA 4096-bit                      AES-256-GCM
	  10-year validity                  versioned, rotatable

## Cluster Encryption Key

All at-rest protection is rooted in a 32-byte key derived from the cluster
ID during initialization:

	clusterKey = SHA-256(clusterID)

This key wraps:
  - the certificate authority's root private key (via the cluster-wide Encrypt/Decrypt helpers)
  - universe keys, which are themselves wrapped with a separately derived
    key-encryption-key (see UniverseKeyManager)

The key is held only in memory on master nodes and must be re-derivable from
the cluster ID when a node rejoins the cluster or restores from backup.

# Certificate Authority

## Root CA

The CA uses a hierarchical structure with a long-lived root certificate:

	Root CA (self-signed)
	├── 10-year validity
	├── RSA 4096-bit key (high security)
	├── KeyUsage: CertSign, CRLSign
	└── Subject: CN=Vanguard Root CA, O=Vanguard Cluster

The root CA is created during cluster initialization. Its certificate is
stored in plaintext (it is public); its private key is encrypted with the
cluster encryption key before being persisted.

Because a node must be able to establish the Raft transport's mTLS listener
before it can read anything from the replicated Sys-Catalog, the CA's root
key material is never itself a Sys-Catalog entry. It is persisted to a
node-local blob store (CertAuthority.store, the caStore interface) instead
of going through the catalog's registry/FSM path.

## Cluster Member Certificates

The CA issues certificates for every cluster member:

	Member Certificate
	├── 90-day validity
	├── RSA 2048-bit key (faster operations)
	├── KeyUsage: DigitalSignature, KeyEncipherment
	├── ExtKeyUsage: ServerAuth, ClientAuth
	├── Subject: CN={role}-{nodeID}, O=Vanguard Cluster
	├── DNS Names: [node hostname]
	└── IP Addresses: [node IP]

role is one of "master", "tablet-server", or a producer-cluster role when
the cluster is acting as a consumer in xCluster replication. Each member
gets a distinct certificate for mutual TLS:

	Master ←→ mTLS ←→ Tablet Server
	  ↓                    ↓
	CA verifies       CA verifies
	tablet cert       master cert

## Client Certificates

CLI clients also receive certificates for authentication:

	CLI Certificate
	├── 90-day validity
	├── KeyUsage: DigitalSignature, KeyEncipherment
	├── ExtKeyUsage: ClientAuth
	└── Subject: CN=cli-{clientID}, O=Vanguard Cluster

# Universe Keys (Encryption at Rest)

## UniverseKeyManager

UniverseKeyManager generates, wraps and caches the data-encryption keys
referenced by a namespace's ClusterConfig.EncryptionInfo (Enabled,
KeyVersion, UniverseKeyID). Each key is a 32-byte AES-256 key, identified by
an ID derived from its own hash, and is wrapped with a key-encryption-key
derived from the cluster ID before being handed back to the caller for
persistence:

	GenerateKey() → (key, wrapped)   wrapped is safe to persist outside the manager
	LoadKey(id, wrapped) → key       unwraps and caches a previously persisted key
	Encrypt(keyID, plaintext)        uses the cached key, not the wrapping key
	Decrypt(keyID, ciphertext)

Rotation creates a new key version and leaves older keys loaded so data
encrypted under a prior version can still be read.

# Usage Examples

## Setting Up the Certificate Authority

	import (
		"github.com/vanguarddb/vanguard/pkg/security"
		"github.com/vanguarddb/vanguard/pkg/storage"
	)

	store, err := storage.NewBoltStore("/var/lib/vanguard/master-1")
	if err != nil {
		panic(err)
	}

	clusterKey := security.DeriveKeyFromClusterID(clusterID)
	if err := security.SetClusterEncryptionKey(clusterKey); err != nil {
		panic(err)
	}

	ca := security.NewCertAuthority(store) // *storage.BoltStore satisfies caStore
	if err := ca.Initialize(); err != nil {
		panic(err)
	}
	if err := ca.SaveToStore(); err != nil {
		panic(err)
	}

## Issuing Member Certificates

	nodeID := "master-1"
	role := "master"
	dnsNames := []string{"master1.cluster.local", "localhost"}
	ipAddresses := []net.IP{net.ParseIP("10.0.0.10"), net.ParseIP("127.0.0.1")}

	tlsCert, err := ca.IssueNodeCertificate(nodeID, role, dnsNames, ipAddresses)
	if err != nil {
		panic(err)
	}

## Encrypting Table Data

	ukm := security.NewUniverseKeyManager(clusterID)
	key, wrapped, err := ukm.GenerateKey()
	if err != nil {
		panic(err)
	}
	// persist `wrapped` alongside ClusterConfig.EncryptionInfo.UniverseKeyID = key.ID

	ciphertext, err := ukm.Encrypt(key.ID, rowBytes)
	if err != nil {
		panic(err)
	}

## Certificate Rotation

	if security.CertNeedsRotation(cert) {
		newTLSCert, err := ca.IssueNodeCertificate(nodeID, role, dnsNames, ipAddresses)
		if err != nil {
			panic(err)
		}
		certDir, _ := security.GetCertDir(role, nodeID)
		if err := security.SaveCertToFile(newTLSCert, certDir); err != nil {
			panic(err)
		}
	}

# gRPC TLS Integration

Master-to-tablet-server and master-to-master RPCs use mTLS with CA-issued
certificates:

	// Server-side (master)
	creds := credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{masterCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    certPool, // contains root CA
	})

	// Client-side (tablet server)
	creds := credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{tabletServerCert},
		RootCAs:      certPool,
	})

# Design Patterns

## Authenticated Encryption

GCM mode provides both confidentiality and integrity for both the CA's root
key and universe-key-encrypted row data:

	Encryption:  plaintext + key + nonce → ciphertext + tag
	Decryption:  ciphertext + tag + key + nonce → plaintext (or error)

A modified ciphertext, wrong key, or wrong nonce all fail decryption rather
than silently returning corrupted plaintext.

## Hierarchical PKI

	Root CA (trust anchor)
	└── Member / Client certificates (issued by root)

The root key is used only for issuing certificates and can stay offline
between issuance/rotation cycles.

## Key Derivation

	clusterKey = SHA-256(clusterID)

Same cluster ID always derives the same key, so it never needs to be
distributed separately to a node that already knows which cluster it's
joining; losing the cluster ID means losing anything encrypted under keys
derived from it.

# Security Considerations

## Key Management

  - Compromise of the cluster encryption key exposes the CA root key and
    every wrapped universe key.
  - Loss of the cluster ID makes wrapped key material unrecoverable.
  - Rotate universe keys periodically: old versions stay loaded for reads,
    new writes use the newest version.

## Threat Model

This package protects against:

	✓ Network eavesdropping between masters and tablet servers (TLS)
	✓ Unauthorized RPC access (mTLS authentication)
	✓ Row-data tampering at rest (authenticated encryption)
	✓ Impersonation of a cluster member (CA-signed certificates)

It does NOT protect against:

	✗ A compromised cluster encryption key
	✗ A compromised CA private key
	✗ A compromised master node (full Sys-Catalog access)
	✗ Physical access to storage media holding the BoltDB files

# See Also

  - pkg/storage - node-local and replicated storage backends
  - pkg/catalog - ClusterConfig.EncryptionInfo and ChangeEncryptionInfo
*/
package security
