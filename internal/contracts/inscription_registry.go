package contracts

// InscriptionRegistryABI is the ABI of the EVM contract that mirrors completed
// inscriptions for holders using EVM wallets.
const InscriptionRegistryABI = `[
  {
    "type": "function",
    "name": "recordInscription",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "requestId", "type": "bytes32"},
      {"name": "walletAddress", "type": "string"},
      {"name": "paymentTxId", "type": "string"}
    ],
    "outputs": []
  },
  {
    "type": "event",
    "name": "InscriptionRecorded",
    "anonymous": false,
    "inputs": [
      {"name": "requestId", "type": "bytes32", "indexed": true},
      {"name": "walletAddress", "type": "string", "indexed": false},
      {"name": "paymentTxId", "type": "string", "indexed": false}
    ]
  }
]`
