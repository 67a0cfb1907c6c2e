package decoder

// Embedded ABI JSON fragments for the two contract shapes the pipeline
// understands: the events the Decoder binds, plus the one factory view
// function the Chain Client calls during discovery.
const factoryABIJSON = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "tokenAddress", "type": "address"},
			{"indexed": true, "name": "curveAddress", "type": "address"},
			{"indexed": true, "name": "creator", "type": "address"},
			{"indexed": false, "name": "name", "type": "string"},
			{"indexed": false, "name": "symbol", "type": "string"},
			{"indexed": false, "name": "timestamp", "type": "uint256"}
		],
		"name": "BondingCurveDeployed",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "creator", "type": "address"},
			{"indexed": false, "name": "timestamp", "type": "uint256"}
		],
		"name": "RegularTokenCreatorApproved",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "creator", "type": "address"},
			{"indexed": false, "name": "timestamp", "type": "uint256"}
		],
		"name": "RegularTokenCreatorRevoked",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [],
		"name": "getDeployedCurves",
		"outputs": [
			{
				"name": "",
				"type": "tuple[]",
				"components": [
					{"name": "tokenAddress", "type": "address"},
					{"name": "creator", "type": "address"},
					{"name": "curveAddress", "type": "address"},
					{"name": "name", "type": "string"},
					{"name": "symbol", "type": "string"},
					{"name": "deployedAt", "type": "uint256"},
					{"name": "isActive", "type": "bool"},
					{"name": "isApproved", "type": "bool"}
				]
			}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

const curveABIJSON = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "user", "type": "address"},
			{"indexed": true, "name": "isBuy", "type": "bool"},
			{"indexed": false, "name": "ethInOrOut", "type": "uint256"},
			{"indexed": false, "name": "tokenDelta", "type": "uint256"},
			{"indexed": false, "name": "priceBefore", "type": "uint256"},
			{"indexed": false, "name": "priceAfter", "type": "uint256"},
			{"indexed": false, "name": "supplyAfter", "type": "uint256"},
			{"indexed": false, "name": "timestamp", "type": "uint256"}
		],
		"name": "Trade",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "buyer", "type": "address"},
			{"indexed": false, "name": "tokensReceived", "type": "uint256"},
			{"indexed": false, "name": "ethSpent", "type": "uint256"},
			{"indexed": false, "name": "platformFee", "type": "uint256"},
			{"indexed": false, "name": "creatorFee", "type": "uint256"},
			{"indexed": false, "name": "newPrice", "type": "uint256"}
		],
		"name": "TokensPurchased",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "seller", "type": "address"},
			{"indexed": false, "name": "tokenAmount", "type": "uint256"},
			{"indexed": false, "name": "ethReceived", "type": "uint256"},
			{"indexed": false, "name": "platformFee", "type": "uint256"},
			{"indexed": false, "name": "creatorFee", "type": "uint256"},
			{"indexed": false, "name": "newPrice", "type": "uint256"}
		],
		"name": "TokensSold",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "level", "type": "uint256"},
			{"indexed": false, "name": "reserveETH", "type": "uint256"},
			{"indexed": false, "name": "vestedTokens", "type": "uint256"},
			{"indexed": false, "name": "timestamp", "type": "uint256"}
		],
		"name": "MilestoneReached",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "mcapOrReserves", "type": "uint256"},
			{"indexed": false, "name": "timestamp", "type": "uint256"}
		],
		"name": "ReadyForDEX",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "pool", "type": "address"},
			{"indexed": false, "name": "tokenId", "type": "uint256"},
			{"indexed": false, "name": "ethUsed", "type": "uint256"},
			{"indexed": false, "name": "tokenUsed", "type": "uint256"},
			{"indexed": false, "name": "timestamp", "type": "uint256"}
		],
		"name": "MigrationCompleted",
		"type": "event"
	}
]`
