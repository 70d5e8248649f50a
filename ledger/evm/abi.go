// Copyright 2025 The ChainDeed Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package evm

// chainDeedABI covers the subset of the ChainDeed registry contract the
// engine consumes: request lifecycle, ERC-721 ownership enumeration and
// the lifecycle events.
const chainDeedABI = `[
  {
    "type": "function",
    "name": "submitMintRequest",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "tokenURI", "type": "string"},
      {"name": "description", "type": "string"}
    ],
    "outputs": [{"name": "requestId", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "approveMintRequest",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "requestId", "type": "uint256"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "rejectMintRequest",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "requestId", "type": "uint256"},
      {"name": "reason", "type": "string"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getRequest",
    "stateMutability": "view",
    "inputs": [{"name": "requestId", "type": "uint256"}],
    "outputs": [
      {"name": "requester", "type": "address"},
      {"name": "tokenURI", "type": "string"},
      {"name": "description", "type": "string"},
      {"name": "timestamp", "type": "uint256"},
      {"name": "status", "type": "uint8"},
      {"name": "rejectReason", "type": "string"}
    ]
  },
  {
    "type": "function",
    "name": "getUserRequests",
    "stateMutability": "view",
    "inputs": [{"name": "user", "type": "address"}],
    "outputs": [{"name": "requestIds", "type": "uint256[]"}]
  },
  {
    "type": "function",
    "name": "getPendingRequests",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "requestIds", "type": "uint256[]"}]
  },
  {
    "type": "function",
    "name": "balanceOf",
    "stateMutability": "view",
    "inputs": [{"name": "owner", "type": "address"}],
    "outputs": [{"name": "balance", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "tokenOfOwnerByIndex",
    "stateMutability": "view",
    "inputs": [
      {"name": "owner", "type": "address"},
      {"name": "index", "type": "uint256"}
    ],
    "outputs": [{"name": "tokenId", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "tokenURI",
    "stateMutability": "view",
    "inputs": [{"name": "tokenId", "type": "uint256"}],
    "outputs": [{"name": "uri", "type": "string"}]
  },
  {
    "type": "function",
    "name": "ownerOf",
    "stateMutability": "view",
    "inputs": [{"name": "tokenId", "type": "uint256"}],
    "outputs": [{"name": "owner", "type": "address"}]
  },
  {
    "type": "function",
    "name": "owner",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "address"}]
  },
  {
    "type": "event",
    "name": "MintRequestSubmitted",
    "inputs": [
      {"name": "requestId", "type": "uint256", "indexed": true},
      {"name": "requester", "type": "address", "indexed": true}
    ],
    "anonymous": false
  },
  {
    "type": "event",
    "name": "MintRequestApproved",
    "inputs": [
      {"name": "requestId", "type": "uint256", "indexed": true},
      {"name": "requester", "type": "address", "indexed": true},
      {"name": "tokenId", "type": "uint256", "indexed": false}
    ],
    "anonymous": false
  },
  {
    "type": "event",
    "name": "MintRequestRejected",
    "inputs": [
      {"name": "requestId", "type": "uint256", "indexed": true},
      {"name": "requester", "type": "address", "indexed": true},
      {"name": "reason", "type": "string", "indexed": false}
    ],
    "anonymous": false
  },
  {
    "type": "event",
    "name": "Transfer",
    "inputs": [
      {"name": "from", "type": "address", "indexed": true},
      {"name": "to", "type": "address", "indexed": true},
      {"name": "tokenId", "type": "uint256", "indexed": true}
    ],
    "anonymous": false
  }
]`
